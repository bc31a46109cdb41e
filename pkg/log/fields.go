package log

// HTTP and gRPC access log fields.
const (
	FieldRequestID  = "request_id"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatus     = "status"
	FieldLatency    = "latency_ms"
	FieldClientIP   = "client_ip"
	FieldGRPCMethod = "grpc_method"
	FieldGRPCCode   = "grpc_code"
)

// Actor fields. The auth middleware stores claims in the gin context
// under the same names.
const (
	FieldUserID   = "user_id"
	FieldUsername = "username"
	FieldTier     = "tier"
)

const (
	FieldService   = "service"
	FieldClientID  = "client_id"
	FieldRoomID    = "room_id"
	FieldTodoID    = "todo_id"
	FieldMessageID = "message_id"
)

// Audit records carry log_type=audit so they can be routed separately.
const (
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
