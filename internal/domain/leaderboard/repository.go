package leaderboard

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT CACHE INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// SnapshotCache определяет контракт для кеширования снапшотов рейтинга.
// Реализации: Redis и in-memory. Кеш не является источником истины:
// промах или ошибка приводят к пересчёту из хранилища записей.
type SnapshotCache interface {
	// GetSnapshot возвращает закешированный снапшот для режима.
	// Возвращает (nil, nil), если кеш пуст или устарел.
	GetSnapshot(ctx context.Context, mode Mode) (*Snapshot, error)

	// SetSnapshot сохраняет снапшот с TTL.
	SetSnapshot(ctx context.Context, snapshot *Snapshot, ttl time.Duration) error

	// Invalidate сбрасывает все снапшоты.
	Invalidate(ctx context.Context) error
}
