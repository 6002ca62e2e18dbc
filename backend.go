package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/heroiclabs/nakama-common/runtime"
)

const matchLabel = "action_arena"

func InitModule(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, initializer runtime.Initializer) error {
	if err := initializer.RegisterMatch("game", func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule) (runtime.Match, error) {
		return &GameMatch{}, nil
	}); err != nil {
		logger.Error("unable to register game match: %v", err)
		return err
	}

	if err := EnsureDefaultMatch(ctx, nk, logger); err != nil {
		logger.Error("failed to ensure default match exists: %v", err)
		return err
	}

	logger.Info("module loaded: game match registered, default arena ready")
	return nil
}

// CreateDefaultMatch creates the always-on default arena.
func CreateDefaultMatch(ctx context.Context, nk runtime.NakamaModule, logger runtime.Logger) (string, error) {
	params := map[string]interface{}{
		"level": "default.json",
	}
	matchID, err := nk.MatchCreate(ctx, "game", params)
	if err != nil {
		return "", fmt.Errorf("failed to create default match: %v", err)
	}
	logger.Info("default arena match created: %s", matchID)
	return matchID, nil
}

// EnsureDefaultMatch guarantees at least one arena is always available to
// join, the way the teacher's EnsureDefaultMatch kept one open-world match
// alive for its persistent-world model.
func EnsureDefaultMatch(ctx context.Context, nk runtime.NakamaModule, logger runtime.Logger) error {
	matches, err := nk.MatchList(ctx, 10, true, matchLabel, nil, nil, "")
	if err != nil {
		logger.Error("failed to list matches: %v", err)
		return err
	}
	if len(matches) == 0 {
		_, err := CreateDefaultMatch(ctx, nk, logger)
		return err
	}
	logger.Info("found %d existing arena matches", len(matches))
	return nil
}
