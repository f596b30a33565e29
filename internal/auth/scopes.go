package auth

// Scopes understood by the attendance API.
const (
	ScopeAttendanceRead  = "attendance:read"
	ScopeAttendanceWrite = "attendance:write"
)
