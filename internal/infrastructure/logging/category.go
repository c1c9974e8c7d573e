package logging

type Category string
type SubCategory string
type ExtraKey string

const (
	General         Category = "General"
	IO              Category = "IO"
	Internal        Category = "Internal"
	MongoDB         Category = "MongoDB"
	RabbitMQ        Category = "RabbitMQ"
	NATS            Category = "NATS"
	Validation      Category = "Validation"
	RequestResponse Category = "RequestResponse"
	Prometheus      Category = "Prometheus"
	Session         Category = "Session"
	WebSocket       Category = "WebSocket"
)

const (
	// General
	Startup         SubCategory = "Startup"
	Shutdown        SubCategory = "Shutdown"
	RateLimiting    SubCategory = "RateLimiting"
	ExternalService SubCategory = "ExternalService"

	// Session
	RoomLifecycle SubCategory = "RoomLifecycle"
	Membership    SubCategory = "Membership"
	BuzzerRound   SubCategory = "BuzzerRound"

	// WebSocket
	Connection SubCategory = "Connection"
	Broadcast  SubCategory = "Broadcast"
	Inbound    SubCategory = "Inbound"

	// IO
	Publish SubCategory = "Publish"
	Consume SubCategory = "Consume"
	Store   SubCategory = "Store"
)

const (
	AppName      ExtraKey = "AppName"
	LoggerName   ExtraKey = "Logger"
	ClientIp     ExtraKey = "ClientIp"
	HostIp       ExtraKey = "HostIp"
	Method       ExtraKey = "Method"
	StatusCode   ExtraKey = "StatusCode"
	BodySize     ExtraKey = "BodySize"
	Path         ExtraKey = "Path"
	Latency      ExtraKey = "Latency"
	RequestBody  ExtraKey = "RequestBody"
	ResponseBody ExtraKey = "ResponseBody"
	ErrorMessage ExtraKey = "ErrorMessage"
	RoomID       ExtraKey = "RoomId"
	Username     ExtraKey = "Username"
	ClientID     ExtraKey = "ClientId"
	EventType    ExtraKey = "EventType"
	Round        ExtraKey = "Round"
	Winner       ExtraKey = "Winner"
)
