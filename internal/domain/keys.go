package domain

type CtxKey string

// KeyRequestID is the gin context key holding the request id.
const KeyRequestID CtxKey = "RequestID"
