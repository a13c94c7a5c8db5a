package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"bingx-trading-bot/internal/status"
	"bingx-trading-bot/pkg/config"
)

var statusBotID string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the last status a bot reported to Redis",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.RedisAddr == "" {
			return errors.New("REDIS_ADDR is not set")
		}
		botID := statusBotID
		if botID == "" {
			botID = cfg.BotID
		}

		ctx := cmd.Context()
		rdb, err := status.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer rdb.Close()

		rec, err := status.NewRedisSink(rdb, "", cfg.StatusTTL).Get(ctx, botID)
		if errors.Is(err, status.ErrNoStatus) {
			return fmt.Errorf("bot %q has not reported yet", botID)
		}
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusBotID, "bot", "", "bot id (defaults to BOT_ID)")
	rootCmd.AddCommand(statusCmd)
}
