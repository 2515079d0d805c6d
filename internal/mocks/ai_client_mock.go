package mocks

import (
	"context"

	"vnovel-server/internal/llm"

	"github.com/stretchr/testify/mock"
)

// MockAIClient is a mock type for the AIClient type
type MockAIClient struct {
	mock.Mock
}

// GenerateText provides a mock function with given fields: ctx, userID, messages, params
func (_m *MockAIClient) GenerateText(ctx context.Context, userID string, messages []llm.Message, params llm.GenerationParams) (string, llm.UsageInfo, error) {
	ret := _m.Called(ctx, userID, messages, params)

	var r0 string
	if rf, ok := ret.Get(0).(func(context.Context, string, []llm.Message, llm.GenerationParams) string); ok {
		r0 = rf(ctx, userID, messages, params)
	} else {
		r0 = ret.String(0)
	}

	var r1 llm.UsageInfo
	if ret.Get(1) != nil {
		r1 = ret.Get(1).(llm.UsageInfo)
	}

	return r0, r1, ret.Error(2)
}

// GenerateTextStream provides a mock function with given fields: ctx, userID, messages, params, chunkHandler
func (_m *MockAIClient) GenerateTextStream(ctx context.Context, userID string, messages []llm.Message, params llm.GenerationParams, chunkHandler func(string) error) (llm.UsageInfo, error) {
	ret := _m.Called(ctx, userID, messages, params, chunkHandler)

	var r0 llm.UsageInfo
	if rf, ok := ret.Get(0).(func(context.Context, string, []llm.Message, llm.GenerationParams, func(string) error) llm.UsageInfo); ok {
		r0 = rf(ctx, userID, messages, params, chunkHandler)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).(llm.UsageInfo)
	}

	return r0, ret.Error(1)
}

// GenerateWithTools provides a mock function with given fields: ctx, userID, messages, tools, params
func (_m *MockAIClient) GenerateWithTools(ctx context.Context, userID string, messages []llm.Message, tools []llm.ToolDefinition, params llm.GenerationParams) (llm.ToolResponse, llm.UsageInfo, error) {
	ret := _m.Called(ctx, userID, messages, tools, params)

	var r0 llm.ToolResponse
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(llm.ToolResponse)
	}

	var r1 llm.UsageInfo
	if ret.Get(1) != nil {
		r1 = ret.Get(1).(llm.UsageInfo)
	}

	return r0, r1, ret.Error(2)
}

// NewMockAIClient creates a new instance of MockAIClient. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
// The first argument is typically a *testing.T value.
func NewMockAIClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockAIClient {
	m := &MockAIClient{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}

var _ llm.AIClient = (*MockAIClient)(nil)
var _ llm.ToolCaller = (*MockAIClient)(nil)
