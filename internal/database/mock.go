package database

import (
	"github.com/stretchr/testify/mock"

	"github.com/filmcrew/setchat/internal/types"
)

type MockChatRepository struct {
	mock.Mock
}

func (m *MockChatRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockChatRepository) GetAccountByEmail(email string) (Account, error) {
	args := m.Called(email)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockChatRepository) GetAccountByID(id string) (Account, error) {
	args := m.Called(id)
	return args.Get(0).(Account), args.Error(1)
}
func (m *MockChatRepository) ProjectMember(projectID, userID string) (types.Identity, error) {
	args := m.Called(projectID, userID)
	return args.Get(0).(types.Identity), args.Error(1)
}
func (m *MockChatRepository) AppendMessage(projectID string, sender types.Identity, body string) (types.Message, error) {
	args := m.Called(projectID, sender, body)
	return args.Get(0).(types.Message), args.Error(1)
}
func (m *MockChatRepository) PageMessages(projectID, beforeID string, limit int) ([]types.Message, string, error) {
	args := m.Called(projectID, beforeID, limit)
	if msgs, ok := args.Get(0).([]types.Message); ok {
		return msgs, args.String(1), args.Error(2)
	}
	return nil, args.String(1), args.Error(2)
}
func (m *MockChatRepository) SoftDeleteMessage(projectID, messageID string, requester types.Identity) (types.DeleteResult, error) {
	args := m.Called(projectID, messageID, requester)
	return args.Get(0).(types.DeleteResult), args.Error(1)
}
