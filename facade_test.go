package pollsched

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/tjamet/go-pollsched/mocks"
)

func TestFacadeDispatchesToBackend(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := mocks.NewMockBackend(ctrl)

	m.EXPECT().Init().Return(nil)
	m.EXPECT().Register(NewClassSet(), FlagRead, gomock.Any(), "data", EventDevice, int64(3), nil).Return(StatusSuccess, nil)
	m.EXPECT().Remove(NewClassSet(), FlagRead, gomock.Any(), "data", EventDevice).Return(true)
	m.EXPECT().Loop(true, gomock.Any(), ClassUniversal, int64(1_000_000)).Return(nil)
	m.EXPECT().Exit().Return(nil)

	require.NoError(t, InitWithImpl(m))
	defer func() {
		require.NoError(t, Exit())
	}()

	status, err := Register(NewClassSet(), FlagRead, func(any) {}, "data", EventDevice, 3, nil)
	require.NoError(t, err)
	require.Equal(t, StatusSuccess, status)

	ok := Remove(NewClassSet(), FlagRead, func(any) {}, "data", EventDevice)
	require.True(t, ok)

	require.NoError(t, LoopDefault(true, nil, ClassUniversal))
}

func TestFacadeDoubleInitPanics(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := mocks.NewMockBackend(ctrl)
	m.EXPECT().Init().Return(nil)
	m.EXPECT().Exit().Return(nil)

	require.NoError(t, InitWithImpl(m))
	defer func() {
		require.NoError(t, Exit())
	}()

	require.Panics(t, func() {
		_ = InitWithImpl(m)
	})
}

func TestDefaultMetricsIsZeroValueForCustomBackend(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := mocks.NewMockBackend(ctrl)
	m.EXPECT().Init().Return(nil)
	m.EXPECT().Exit().Return(nil)

	require.NoError(t, InitWithImpl(m))
	defer func() {
		require.NoError(t, Exit())
	}()

	// InitWithImpl leaves metrics wiring to the caller's own backend, so the
	// process-default snapshot reports no activity rather than panicking.
	require.Zero(t, DefaultMetrics())
}
