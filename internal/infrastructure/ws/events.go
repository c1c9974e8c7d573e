package ws

// Inbound events.
const (
	CreateRoomEvent   = "createRoom"
	JoinRoomEvent     = "joinRoom"
	BuzzEvent         = "buzz"
	UnlockBuzzerEvent = "unlockBuzzer"
	ResetBuzzerEvent  = "resetBuzzer"
)

// Outbound events.
const (
	JoinSuccess  = "joinSuccess"
	JoinFailure  = "joinFailure"
	DissolveRoom = "dissolveRoom"
	UpdateUsers  = "updateUsers"
	UpdateBuzzer = "updateBuzzer"
	ErrorEvent   = "error"
)

// Error codes carried in joinFailure and error payloads.
const (
	CodeRoomNotFound    = "RoomNotFound"
	CodeUsernameTaken   = "UsernameTaken"
	CodeInvalidUsername = "InvalidUsername"
	CodeAdminClaimed    = "AdminAlreadyClaimed"
	CodeNotAdmin        = "NotAdmin"
	CodeNotJoined       = "NotJoined"
	CodeAlreadyJoined   = "AlreadyJoined"
	CodeBadMessage      = "BadMessage"
	CodeUnknownEvent    = "UnknownEvent"
	CodeStoreFailure    = "StoreFailure"
	CodeRateLimited     = "RateLimited"
	CodeInternal        = "Internal"
)
