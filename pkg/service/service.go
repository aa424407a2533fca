// Package service exports the daemon's client-facing bus interface.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"

	"github.com/destructatron/waytray/pkg/config"
	"github.com/destructatron/waytray/pkg/menu"
	"github.com/destructatron/waytray/pkg/module"
	"github.com/destructatron/waytray/pkg/modules/tray"
	sni "github.com/destructatron/waytray/pkg/tray"
)

const (
	// BusName is the well-known name clients call.
	BusName = "org.waytray.Daemon"
	// Interface of the daemon object.
	Interface = "org.waytray.Daemon"
	// ObjectPath of the daemon object.
	ObjectPath = dbus.ObjectPath("/org/waytray/Daemon")
)

// Bus error names clients can match on.
const (
	errNameNotFound     = Interface + ".Error.NotFound"
	errNameInvalidID    = Interface + ".Error.InvalidId"
	errNameNotSupported = Interface + ".Error.NotSupported"
)

// trayItemDTO is the wire shape of a raw status notifier item for the
// flat legacy queries.
type trayItemDTO struct {
	ID         string
	BusName    string
	ObjectPath string
	Title      string
	IconName   string
	IconPixmap []byte
	IconWidth  int32
	IconHeight int32
	Tooltip    string
	Status     string
	HasMenu    bool
	MenuPath   string
	ItemIsMenu bool
	Category   string
}

// moduleItemDTO is the wire shape of a module item.
type moduleItemDTO struct {
	ID         string
	Module     string
	Label      string
	IconName   string
	IconPixmap []byte
	IconWidth  int32
	IconHeight int32
	Tooltip    string
	Actions    []actionDTO
}

type actionDTO struct {
	ID      string
	Label   string
	Default bool
}

type moduleInfoDTO struct {
	Name    string
	Enabled bool
}

// Service publishes org.waytray.Daemon and forwards registry change
// events as bus signals. It plugs into the daemon lifecycle.
type Service struct {
	conn       *dbus.Conn
	log        *zap.SugaredLogger
	registry   *module.Registry
	tray       *tray.Module
	configPath string
}

// New returns a Service for the given registry. trayModule carries the
// flat legacy item surface and may be nil when the tray module is not
// registered.
func New(conn *dbus.Conn, log *zap.SugaredLogger, registry *module.Registry, trayModule *tray.Module, configPath string) *Service {
	return &Service{
		conn:       conn,
		log:        log,
		registry:   registry,
		tray:       trayModule,
		configPath: configPath,
	}
}

// InitializeDaemon exports the daemon object and claims the well-known
// name.
func (s *Service) InitializeDaemon() error {
	if err := s.conn.Export(&object{svc: s}, ObjectPath, Interface); err != nil {
		return fmt.Errorf("exporting daemon object: %w", err)
	}

	reply, err := s.conn.RequestName(BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("requesting name %s: %w", BusName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("name %s is already taken", BusName)
	}

	s.log.Infow("bus service started", "name", BusName, "path", ObjectPath)
	return nil
}

// Serve translates registry change events into bus signals until the
// context is cancelled.
func (s *Service) Serve(ctx context.Context) {
	sub := s.registry.Subscribe()
	defer sub.Cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			s.emit(ev)
		}
	}
}

// TerminateDaemon gives up the well-known name.
func (s *Service) TerminateDaemon() error {
	_, err := s.conn.ReleaseName(BusName)
	return err
}

func (s *Service) emit(ev module.Event) {
	switch ev.Kind {
	case module.EventItemsUpdated:
		if err := s.conn.Emit(ObjectPath, Interface+".ModuleItemsChanged", ev.Module); err != nil {
			s.log.Warnw("could not emit ModuleItemsChanged", "error", err)
		}
		if ev.Module == "tray" {
			// Pre-module clients only know the unscoped signal.
			if err := s.conn.Emit(ObjectPath, Interface+".ItemsChanged"); err != nil {
				s.log.Warnw("could not emit ItemsChanged", "error", err)
			}
		}
	case module.EventConfigReloaded:
		if err := s.conn.Emit(ObjectPath, Interface+".ConfigReloaded"); err != nil {
			s.log.Warnw("could not emit ConfigReloaded", "error", err)
		}
	}
}

// object carries the exported bus methods; it is separate from Service
// so the lifecycle methods never surface on the bus.
type object struct {
	svc *Service
}

func (o *object) GetItems() ([]trayItemDTO, *dbus.Error) {
	if o.svc.tray == nil {
		return []trayItemDTO{}, nil
	}
	items := o.svc.tray.TrayItems()
	out := make([]trayItemDTO, 0, len(items))
	for _, item := range items {
		out = append(out, toTrayDTO(item))
	}
	return out, nil
}

func (o *object) GetItem(id string) (trayItemDTO, *dbus.Error) {
	if o.svc.tray == nil {
		return trayItemDTO{}, dbus.NewError(errNameNotFound, []interface{}{"tray module not registered"})
	}
	item, ok := o.svc.tray.TrayItem(id)
	if !ok {
		return trayItemDTO{}, dbus.NewError(errNameNotFound, []interface{}{fmt.Sprintf("item not found: %s", id)})
	}
	return toTrayDTO(item), nil
}

func (o *object) GetModuleItems() ([]moduleItemDTO, *dbus.Error) {
	return toModuleDTOs(o.svc.registry.Items()), nil
}

func (o *object) GetModuleItemsFor(name string) ([]moduleItemDTO, *dbus.Error) {
	return toModuleDTOs(o.svc.registry.ModuleItems(name)), nil
}

func (o *object) GetModules() ([]moduleInfoDTO, *dbus.Error) {
	infos := o.svc.registry.Modules()
	out := make([]moduleInfoDTO, 0, len(infos))
	for _, info := range infos {
		out = append(out, moduleInfoDTO{Name: info.Name, Enabled: info.Enabled})
	}
	return out, nil
}

func (o *object) ItemCount() (uint32, *dbus.Error) {
	return uint32(o.svc.registry.ItemCount()), nil
}

func (o *object) Activate(itemID string, x, y int32) *dbus.Error {
	return o.trayAction(itemID, "activate", x, y)
}

func (o *object) SecondaryActivate(itemID string, x, y int32) *dbus.Error {
	return o.trayAction(itemID, "secondary_activate", x, y)
}

func (o *object) ContextMenu(itemID string, x, y int32) *dbus.Error {
	return o.trayAction(itemID, "context_menu", x, y)
}

func (o *object) Scroll(itemID string, delta int32, orientation string) *dbus.Error {
	if o.svc.tray == nil {
		return dbus.NewError(errNameNotFound, []interface{}{"tray module not registered"})
	}
	return mapError(o.svc.tray.Scroll(itemID, delta, orientation))
}

func (o *object) InvokeAction(itemID, actionID string, x, y int32) *dbus.Error {
	return mapError(o.svc.registry.InvokeAction(itemID, actionID, x, y))
}

// GetMenu returns the item's menu tree serialized as JSON.
func (o *object) GetMenu(itemID string) (string, *dbus.Error) {
	nodes, err := o.svc.registry.MenuItems(itemID)
	if err != nil {
		return "", mapError(err)
	}
	data, err := json.Marshal(nodes)
	if err != nil {
		return "", dbus.MakeFailedError(err)
	}
	return string(data), nil
}

func (o *object) ActivateMenuItem(itemID string, nodeID int32) *dbus.Error {
	return mapError(o.svc.registry.ActivateMenuItem(itemID, nodeID))
}

// ReloadConfig re-reads the config file and reconciles the registry
// against it.
func (o *object) ReloadConfig() *dbus.Error {
	cfg, err := config.Load(o.svc.configPath)
	if err != nil {
		return dbus.MakeFailedError(err)
	}
	o.svc.registry.Reload(cfg)
	return nil
}

func (o *object) trayAction(itemID, actionID string, x, y int32) *dbus.Error {
	if o.svc.tray == nil {
		return dbus.NewError(errNameNotFound, []interface{}{"tray module not registered"})
	}
	return mapError(o.svc.tray.InvokeAction(itemID, actionID, x, y))
}

// mapError turns module errors into named bus errors clients can match.
func mapError(err error) *dbus.Error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, module.ErrInvalidID):
		return dbus.NewError(errNameInvalidID, []interface{}{err.Error()})
	case errors.Is(err, module.ErrNotFound):
		return dbus.NewError(errNameNotFound, []interface{}{err.Error()})
	case errors.Is(err, module.ErrUnsupported):
		return dbus.NewError(errNameNotSupported, []interface{}{err.Error()})
	case errors.Is(err, menu.ErrDepthExceeded):
		return dbus.MakeFailedError(err)
	default:
		return dbus.MakeFailedError(err)
	}
}

func toTrayDTO(item sni.Item) trayItemDTO {
	dto := trayItemDTO{
		ID:         item.ID,
		BusName:    item.BusName,
		ObjectPath: item.ObjectPath,
		Title:      item.Title,
		IconName:   item.IconName,
		Tooltip:    item.Tooltip,
		Status:     string(item.Status),
		HasMenu:    item.HasMenu,
		MenuPath:   item.MenuPath,
		ItemIsMenu: item.ItemIsMenu,
		Category:   string(item.Category),
	}
	if item.Icon != nil {
		dto.IconPixmap = item.Icon.Bytes
		dto.IconWidth = item.Icon.Width
		dto.IconHeight = item.Icon.Height
	}
	return dto
}

func toModuleDTOs(items []module.Item) []moduleItemDTO {
	out := make([]moduleItemDTO, 0, len(items))
	for _, item := range items {
		actions := make([]actionDTO, 0, len(item.Actions))
		for _, action := range item.Actions {
			actions = append(actions, actionDTO{ID: action.ID, Label: action.Label, Default: action.Default})
		}
		out = append(out, moduleItemDTO{
			ID:         item.ID,
			Module:     item.Module,
			Label:      item.Label,
			IconName:   item.IconName,
			IconPixmap: item.IconPixmap,
			IconWidth:  item.IconWidth,
			IconHeight: item.IconHeight,
			Tooltip:    item.Tooltip,
			Actions:    actions,
		})
	}
	return out
}
