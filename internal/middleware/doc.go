// Mahiru - Rhythm Game Performance Recalculation and Maintenance Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mahiru

/*
Package middleware provides the HTTP middleware shared by Mahiru's API.

  - RequestID: assigns or propagates X-Request-ID and seeds the logging
    context with request and correlation ids.
  - PrometheusMetrics: request counts, latency and in-flight gauge, labelled
    by the chi route pattern so path parameters do not explode cardinality.

Both are chi-style constructors:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)
*/
package middleware
