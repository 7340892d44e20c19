// Package sys is the built-in "sys" kit: the component base type, the app
// root, folders and the platform service.
package sys

import (
	"fmt"

	"github.com/roach88/svm/internal/app"
	"github.com/roach88/svm/internal/kit"
	"github.com/roach88/svm/internal/slot"
)

// KitName is the name of the kit.
const KitName = "sys"

// Version is the kit version recorded in saved images.
const Version = "1.2"

// Type names.
const (
	ComponentType       = "sys::Component"
	AppType             = "sys::App"
	FolderType          = "sys::Folder"
	RateFolderType      = "sys::RateFolder"
	ServiceType         = "sys::Service"
	PlatformServiceType = "sys::PlatformService"
)

// Property bounds for the app's string properties.
const (
	AppNameLen    = 32
	DeviceNameLen = 32
)

type options struct {
	host Host
}

// Option configures the kit.
type Option func(*options)

// WithHost sets the host that PlatformService components delegate to.
func WithHost(h Host) Option {
	return func(o *options) { o.host = h }
}

// New builds the sys kit. Every call returns fresh types, so one kit value
// must not be shared between catalogs built with different options.
func New(opts ...Option) (*kit.Kit, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	component := &kit.Type{Name: "Component", Abstract: true, Slots: []slot.Def{
		slot.Config("meta", slot.Int, slot.IntValue(1)),
	}}

	root := &kit.Type{Name: "App", Base: component, Slots: []slot.Def{
		bounded(slot.Config("appName", slot.Buf, nil).WithFlags(slot.FlagAsStr), AppNameLen),
		bounded(slot.Config("deviceName", slot.Buf, nil).WithFlags(slot.FlagAsStr), DeviceNameLen),
		slot.Config("scanPeriod", slot.Int, slot.IntValue(50)),
		slot.Config("guardTime", slot.Int, slot.IntValue(5)),
		slot.Config("timeToSteadyState", slot.Int, slot.IntValue(0)),
		slot.Config("hibernationResetsSteadyState", slot.Bool, slot.BoolValue(false)),
		slot.Action("save", slot.Void),
		slot.Action("quit", slot.Void),
		slot.Action("restart", slot.Void),
		slot.Action("reboot", slot.Void),
		slot.Action("hibernate", slot.Void),
	}}
	root.New = func() any { return &App{} }

	folder := &kit.Type{Name: "Folder", Base: component}

	rate := &kit.Type{Name: "RateFolder", Base: folder, Slots: []slot.Def{
		slot.Config("appCyclesToSkip", slot.Int, slot.IntValue(0)),
	}}
	rate.New = func() any {
		return &RateFolder{skip: rate.MustSlot("appCyclesToSkip").ID}
	}

	service := &kit.Type{Name: "Service", Base: component, Abstract: true}

	platform := &kit.Type{Name: "PlatformService", Base: service, Slots: []slot.Def{
		slot.Prop("platformId", slot.Buf, slot.Str("unknown")).WithFlags(slot.FlagAsStr),
		slot.Prop("platformVer", slot.Buf, slot.Str("0")).WithFlags(slot.FlagAsStr),
		slot.Prop("memAvailable", slot.Long, slot.LongValue(0)),
		slot.Action("restart", slot.Void),
		slot.Action("reboot", slot.Void),
	}}
	platform.New = func() any {
		return &PlatformService{
			Host:         o.host,
			platformID:   platform.MustSlot("platformId").ID,
			platformVer:  platform.MustSlot("platformVer").ID,
			memAvailable: platform.MustSlot("memAvailable").ID,
		}
	}

	k, err := kit.New(KitName, Version, component, root, folder, rate, service, platform)
	if err != nil {
		return nil, fmt.Errorf("sys kit: %w", err)
	}
	return k, nil
}

// MustNew is New for package initialization and tests.
func MustNew(opts ...Option) *kit.Kit {
	k, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return k
}

func bounded(d slot.Def, n int) slot.Def {
	d.MaxLen = n
	return d
}

// BaseService gives a service behavior the default service answers: no
// background work and hibernation allowed. Embed it and override what the
// service needs.
type BaseService struct{}

func (BaseService) Work(c *app.Component) bool         { return false }
func (BaseService) CanHibernate(c *app.Component) bool { return true }
func (BaseService) OnHibernate(c *app.Component)       {}
func (BaseService) OnUnhibernate(c *app.Component)     {}
