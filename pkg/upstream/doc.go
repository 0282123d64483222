// Package upstream sends chat completion requests to the upstream
// OpenAI-compatible API. The client performs exactly one HTTP exchange
// per call and reports failures as typed errors; retry and credential
// rotation decisions belong to the dispatcher, never to this package.
package upstream
