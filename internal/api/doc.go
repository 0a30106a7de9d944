// Package api hosts the HTTP front door for operators and schedulers.
// Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/jobs/{article,source,batch} to enqueue work.
//   - GET /v1/jobs/{job_id} and POST /v1/jobs/{job_id}/resubmit for job
//     inspection and explicit re-enqueue of failed jobs.
package api
