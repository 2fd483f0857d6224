package database

// ChatRepository is the durable store the engine coordinates with. All
// methods are safe for concurrent use; per-row updates are atomic.
type ChatRepository interface {
	Ping() error
	CreateAccount(params CreateAccountParams) (User, error)
	GetAccountById(id int) (User, error)
	GetAccountByEmail(email string) (User, error)
	ListAccounts() ([]User, error)
	CreateMessage(fromId, toId int, content string) (Message, error)
	MarkDelivered(id int) (Message, error)
	MarkReadBatch(ids []int) ([]Message, error)
	GetConversation(userA, userB int) ([]Message, error)
	GetMessageById(id int) (Message, error)
	GetLastMessage(userA, userB int) (Message, error)
}
