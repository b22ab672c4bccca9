package internaldefs

import (
	authkit "github.com/planora/authkit"
)

// CounterDef defines a public type used by authkit APIs.
//
// CounterDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type CounterDef struct {
	ID   authkit.MetricID
	Name string
	Help string
}

// HistogramDef defines a public type used by authkit APIs.
//
// HistogramDef instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type HistogramDef struct {
	ID   authkit.MetricID
	Name string
	Help string
}

// CounterDefs is an exported constant or variable used by the authentication engine.
var CounterDefs = []CounterDef{
	{ID: authkit.MetricRegisterSuccess, Name: "authkit_register_success_total", Help: "Successful account registrations."},
	{ID: authkit.MetricRegisterDuplicate, Name: "authkit_register_duplicate_total", Help: "Registrations rejected as duplicate."},
	{ID: authkit.MetricRegisterFailure, Name: "authkit_register_failure_total", Help: "Failed account registrations."},
	{ID: authkit.MetricLoginSuccess, Name: "authkit_login_success_total", Help: "Successful login attempts."},
	{ID: authkit.MetricLoginFailure, Name: "authkit_login_failure_total", Help: "Failed login attempts."},
	{ID: authkit.MetricRefreshSuccess, Name: "authkit_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: authkit.MetricRefreshFailure, Name: "authkit_refresh_failure_total", Help: "Failed refresh rotations."},
	{ID: authkit.MetricRefreshReuseDetected, Name: "authkit_refresh_reuse_detected_total", Help: "Detected refresh token reuses."},
	{ID: authkit.MetricValidateSuccess, Name: "authkit_validate_success_total", Help: "Successful access token validations."},
	{ID: authkit.MetricValidateFailure, Name: "authkit_validate_failure_total", Help: "Failed access token validations."},
	{ID: authkit.MetricLogout, Name: "authkit_logout_total", Help: "Logout operations."},
	{ID: authkit.MetricSessionRevoked, Name: "authkit_session_revoked_total", Help: "Sessions revoked in the registry."},
}

// HistogramDefs is an exported constant or variable used by the authentication engine.
var HistogramDefs = []HistogramDef{
	{ID: authkit.MetricValidateLatency, Name: "authkit_validate_latency_seconds", Help: "Validate latency histogram."},
}

// HistogramBounds is an exported constant or variable used by the authentication engine.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is an exported constant or variable used by the authentication engine.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets describes the normalizebuckets operation and its observable behavior.
//
// NormalizeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets describes the cumulativebuckets operation and its observable behavior.
//
// CumulativeBuckets does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
