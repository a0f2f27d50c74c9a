package chatroom

// ChatroomABI is the interface of the on-chain chat store the relay writes to.
const ChatroomABI = `[
  {"type":"function","name":"getChatRoomCount","inputs":[],"outputs":[{"name":"","type":"uint256","internalType":"uint256"}],"stateMutability":"view"},
  {"type":"function","name":"getMessageCount","inputs":[],"outputs":[{"name":"","type":"uint256","internalType":"uint256"}],"stateMutability":"view"},
  {"type":"function","name":"getChatRoom","inputs":[{"name":"roomId","type":"uint256","internalType":"uint256"}],"outputs":[{"name":"","type":"tuple","internalType":"struct ChatStore.ChatRoom","components":[
    {"name":"id","type":"uint256","internalType":"uint256"},
    {"name":"bookingId","type":"uint256","internalType":"uint256"},
    {"name":"user","type":"address","internalType":"address"},
    {"name":"mentorId","type":"uint256","internalType":"uint256"},
    {"name":"isActive","type":"bool","internalType":"bool"},
    {"name":"createdAt","type":"uint256","internalType":"uint256"}
  ]}],"stateMutability":"view"},
  {"type":"function","name":"isAuthorizedSender","inputs":[{"name":"roomId","type":"uint256","internalType":"uint256"},{"name":"sender","type":"address","internalType":"address"}],"outputs":[{"name":"","type":"bool","internalType":"bool"}],"stateMutability":"view"},
  {"type":"function","name":"sendMessage","inputs":[{"name":"roomId","type":"uint256","internalType":"uint256"},{"name":"content","type":"string","internalType":"string"},{"name":"isFromMentor","type":"bool","internalType":"bool"}],"outputs":[],"stateMutability":"nonpayable"},
  {"type":"event","name":"MessageSent","inputs":[
    {"name":"messageId","type":"uint256","indexed":true,"internalType":"uint256"},
    {"name":"roomId","type":"uint256","indexed":true,"internalType":"uint256"},
    {"name":"sender","type":"address","indexed":false,"internalType":"address"},
    {"name":"isFromMentor","type":"bool","indexed":false,"internalType":"bool"}
  ],"anonymous":false},
  {"type":"error","name":"RoomNotFound","inputs":[{"name":"roomId","type":"uint256","internalType":"uint256"}]},
  {"type":"error","name":"RoomNotActive","inputs":[{"name":"roomId","type":"uint256","internalType":"uint256"}]},
  {"type":"error","name":"NotAuthorized","inputs":[{"name":"roomId","type":"uint256","internalType":"uint256"},{"name":"sender","type":"address","internalType":"address"}]},
  {"type":"error","name":"EmptyMessage","inputs":[]}
]`

const (
	MethodGetChatRoomCount   = "getChatRoomCount"
	MethodGetMessageCount    = "getMessageCount"
	MethodGetChatRoom        = "getChatRoom"
	MethodIsAuthorizedSender = "isAuthorizedSender"
	MethodSendMessage        = "sendMessage"

	EventMessageSent = "MessageSent"

	ErrorRoomNotFound  = "RoomNotFound"
	ErrorRoomNotActive = "RoomNotActive"
	ErrorNotAuthorized = "NotAuthorized"
	ErrorEmptyMessage  = "EmptyMessage"
)
