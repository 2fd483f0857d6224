package server

import (
	"github.com/stretchr/testify/mock"
)

type MockTokenVerifier struct {
	mock.Mock
}

func (m *MockTokenVerifier) Verify(token string) (int, error) {
	args := m.Called(token)
	return args.Int(0), args.Error(1)
}
