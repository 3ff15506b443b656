// Hand-maintained in mockgen's output shape.
// Source: internal/backend/vtable.go (interfaces: Backend)

// Package mocks hand-maintains, in the shape mockgen would emit, a mock of
// backend.Backend for façade-level tests that shouldn't need a real OS
// backend (double-init, vtable dispatch, error propagation).
package mocks

import (
	"reflect"
	"sync"

	"go.uber.org/mock/gomock"

	"github.com/tjamet/go-pollsched/internal/types"
)

// MockBackend is a mock of the Backend interface.
type MockBackend struct {
	ctrl     *gomock.Controller
	recorder *MockBackendMockRecorder
}

// MockBackendMockRecorder is the mock recorder for MockBackend.
type MockBackendMockRecorder struct {
	mock *MockBackend
}

// NewMockBackend creates a new mock instance.
func NewMockBackend(ctrl *gomock.Controller) *MockBackend {
	mock := &MockBackend{ctrl: ctrl}
	mock.recorder = &MockBackendMockRecorder{mock}
	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockBackend) EXPECT() *MockBackendMockRecorder {
	return m.recorder
}

// Init mocks base method.
func (m *MockBackend) Init() error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Init")
	ret0, _ := ret[0].(error)
	return ret0
}

// Init indicates an expected call of Init.
func (mr *MockBackendMockRecorder) Init() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Init", reflect.TypeOf((*MockBackend)(nil).Init))
}

// Exit mocks base method.
func (m *MockBackend) Exit() error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Exit")
	ret0, _ := ret[0].(error)
	return ret0
}

// Exit indicates an expected call of Exit.
func (mr *MockBackendMockRecorder) Exit() *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Exit", reflect.TypeOf((*MockBackend)(nil).Exit))
}

// Loop mocks base method.
func (m *MockBackend) Loop(loop bool, exitFlag func() bool, c types.Class, timeoutUs int64) error {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Loop", loop, exitFlag, c, timeoutUs)
	ret0, _ := ret[0].(error)
	return ret0
}

// Loop indicates an expected call of Loop.
func (mr *MockBackendMockRecorder) Loop(loop, exitFlag, c, timeoutUs any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Loop", reflect.TypeOf((*MockBackend)(nil).Loop), loop, exitFlag, c, timeoutUs)
}

// Register mocks base method.
func (m *MockBackend) Register(classSet types.ClassSet, flags types.Flags, fn types.Function, data any, typ types.EventType, info int64, lock sync.Locker) (types.Status, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Register", classSet, flags, fn, data, typ, info, lock)
	ret0, _ := ret[0].(types.Status)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

// Register indicates an expected call of Register.
func (mr *MockBackendMockRecorder) Register(classSet, flags, fn, data, typ, info, lock any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Register", reflect.TypeOf((*MockBackend)(nil).Register), classSet, flags, fn, data, typ, info, lock)
}

// Remove mocks base method.
func (m *MockBackend) Remove(classSet types.ClassSet, flags types.Flags, fn types.Function, data any, typ types.EventType) bool {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "Remove", classSet, flags, fn, data, typ)
	ret0, _ := ret[0].(bool)
	return ret0
}

// Remove indicates an expected call of Remove.
func (mr *MockBackendMockRecorder) Remove(classSet, flags, fn, data, typ any) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Remove", reflect.TypeOf((*MockBackend)(nil).Remove), classSet, flags, fn, data, typ)
}
