package models

import (
	"sync"

	"github.com/mmdatafocus/pharmacy_backend/config"
)

var (
	collaboratorsMu  sync.RWMutex
	settingsProvider SettingsProvider = DBSettings{}
	auditSink        AuditSink        = GormAuditSink{}
	docNumberSource  DocNumberSource
	notificationSink NotificationSink
)

func GetSettingsProvider() SettingsProvider {
	collaboratorsMu.RLock()
	defer collaboratorsMu.RUnlock()
	return settingsProvider
}

func SetSettingsProvider(p SettingsProvider) {
	collaboratorsMu.Lock()
	defer collaboratorsMu.Unlock()
	settingsProvider = p
}

func GetAuditSink() AuditSink {
	collaboratorsMu.RLock()
	defer collaboratorsMu.RUnlock()
	return auditSink
}

func SetAuditSink(s AuditSink) {
	collaboratorsMu.Lock()
	defer collaboratorsMu.Unlock()
	auditSink = s
}

// GetDocNumberSource defaults to Redis counters when DOC_NUMBERS_REDIS is on and Redis is connected.
func GetDocNumberSource() DocNumberSource {
	collaboratorsMu.RLock()
	s := docNumberSource
	collaboratorsMu.RUnlock()
	if s != nil {
		return s
	}
	if config.UseRedisDocNumbers() && config.GetRedisDB() != nil {
		return RedisDocNumberSource{}
	}
	return DBDocNumberSource{}
}

func SetDocNumberSource(s DocNumberSource) {
	collaboratorsMu.Lock()
	defer collaboratorsMu.Unlock()
	docNumberSource = s
}

// GetNotificationSink defaults to the Pub/Sub outbox when a topic is configured.
func GetNotificationSink() NotificationSink {
	collaboratorsMu.RLock()
	s := notificationSink
	collaboratorsMu.RUnlock()
	if s != nil {
		return s
	}
	if config.PubSubConfigured() {
		return OutboxNotificationSink{}
	}
	return LogNotificationSink{}
}

func SetNotificationSink(s NotificationSink) {
	collaboratorsMu.Lock()
	defer collaboratorsMu.Unlock()
	notificationSink = s
}
