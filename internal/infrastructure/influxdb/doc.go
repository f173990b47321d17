// Package influxdb mirrors monitoring data and slow-control changes into
// InfluxDB v2.
//
// The middleman remains the system of record for monitoring data; the
// mirror gives operators a local time series when one is configured. It
// wraps the official influxdb-client-go v2 library with the non-blocking,
// batched WriteAPI.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.SetOnError(func(err error) {
//	    logger.Warn("influxdb write failed", "error", err)
//	})
//	_ = client.WriteMonitoring("chiller", `{"temp":21.5}`, time.Now())
package influxdb
