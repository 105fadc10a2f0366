/*
Package observability exports pipeline activity as Prometheus metrics.

Metrics plug into a pipeline through its stage hooks:

	m := observability.NewMetrics()
	p := pipeline.New(pipeline.WithHooks(m.Hooks()))
	http.Handle("/metrics", m.Handler())
*/
package observability
