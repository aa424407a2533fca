package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/destructatron/waytray/pkg/module"
	sni "github.com/destructatron/waytray/pkg/tray"
)

type nopNotifier struct{}

func (nopNotifier) Send(title, body string, urgency module.Urgency) {}

func newTestObject(t *testing.T) *object {
	t.Helper()
	reg := module.NewRegistry(zap.NewNop().Sugar(), nopNotifier{})
	t.Cleanup(reg.Shutdown)
	svc := New(nil, zap.NewNop().Sugar(), reg, nil, "")
	return &object{svc: svc}
}

func TestMapError(t *testing.T) {
	assert.Nil(t, mapError(nil))

	tests := []struct {
		err  error
		name string
	}{
		{fmt.Errorf("x: %w", module.ErrNotFound), errNameNotFound},
		{fmt.Errorf("x: %w", module.ErrInvalidID), errNameInvalidID},
		{fmt.Errorf("x: %w", module.ErrUnsupported), errNameNotSupported},
		{errors.New("boom"), "org.freedesktop.DBus.Error.Failed"},
	}
	for _, tt := range tests {
		dbusErr := mapError(tt.err)
		require.NotNil(t, dbusErr)
		assert.Equal(t, tt.name, dbusErr.Name)
	}
}

func TestInvokeActionErrorNames(t *testing.T) {
	obj := newTestObject(t)

	err := obj.InvokeAction("nocolon", "activate", 0, 0)
	require.NotNil(t, err)
	assert.Equal(t, errNameInvalidID, err.Name)

	err = obj.InvokeAction("ghost:item", "activate", 0, 0)
	require.NotNil(t, err)
	assert.Equal(t, errNameNotFound, err.Name)
}

func TestLegacyMethodsWithoutTrayModule(t *testing.T) {
	obj := newTestObject(t)

	items, dbusErr := obj.GetItems()
	require.Nil(t, dbusErr)
	assert.Empty(t, items)

	_, dbusErr = obj.GetItem("anything")
	require.NotNil(t, dbusErr)
	assert.Equal(t, errNameNotFound, dbusErr.Name)

	dbusErr = obj.Activate("anything", 0, 0)
	require.NotNil(t, dbusErr)
	assert.Equal(t, errNameNotFound, dbusErr.Name)
}

func TestToTrayDTO(t *testing.T) {
	item := sni.Item{
		ID:         ":1.5/StatusNotifierItem",
		BusName:    ":1.5",
		ObjectPath: "/StatusNotifierItem",
		Title:      "nm-applet",
		Tooltip:    "Wired connection",
		Status:     sni.StatusActive,
		Category:   sni.CategoryApplicationStatus,
		IconName:   "network-wired",
		Icon:       &sni.Icon{Width: 22, Height: 22, Bytes: []byte{1, 2, 3}},
		HasMenu:    true,
		MenuPath:   "/Menu",
	}

	dto := toTrayDTO(item)
	assert.Equal(t, item.ID, dto.ID)
	assert.Equal(t, "Active", dto.Status)
	assert.Equal(t, int32(22), dto.IconWidth)
	assert.Equal(t, []byte{1, 2, 3}, dto.IconPixmap)
	assert.True(t, dto.HasMenu)
	assert.Equal(t, "/Menu", dto.MenuPath)
}

func TestToModuleDTOs(t *testing.T) {
	item := module.NewItem("clock", "time", "09:41").
		WithIcon("preferences-system-time").
		WithAction(module.DefaultAction("activate", "Activate"))

	dtos := toModuleDTOs([]module.Item{item})
	require.Len(t, dtos, 1)
	assert.Equal(t, "clock:time", dtos[0].ID)
	assert.Equal(t, "clock", dtos[0].Module)
	require.Len(t, dtos[0].Actions, 1)
	assert.True(t, dtos[0].Actions[0].Default)
}
