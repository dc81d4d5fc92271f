package guard

import (
	"context"

	domain "authgate-service/internal/domain/auth"
	"authgate-service/internal/pkg/device"
)

var deviceInfo = device.Parse("Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0")

type noRecords struct{}

func (noRecords) CreateSession(context.Context, string, device.Info) string            { return "row-1" }
func (noRecords) TouchSession(context.Context, string)                                 {}
func (noRecords) DeleteSession(context.Context, string, string) error                  { return nil }
func (noRecords) DeleteOtherSessions(context.Context, string, string) (int64, error)   { return 0, nil }
func (noRecords) ListSessions(context.Context, string) ([]domain.Session, error)       { return nil, nil }
func (noRecords) LogActivity(string, domain.EventType, string, map[string]interface{}) {}
func (noRecords) LogSecurityEvent(string, string, map[string]interface{})              {}
