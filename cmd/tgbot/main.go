package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"twquote/internal/app"
	"twquote/internal/chatbot"
	"twquote/internal/config"
	"twquote/internal/logging"
)

// tgbot exposes the quote chatbot over Telegram long polling.
func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	if cfg.Telegram.Token == "" {
		log.Fatal().Msg("TELEGRAM_BOT_TOKEN not set")
	}

	c, err := app.NewCache(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("cache")
	}
	bot := chatbot.New(app.NewResolver(cfg, c, log), chatbot.DefaultKeywords())

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		log.Fatal().Err(err).Msg("telegram")
	}
	api.Debug = cfg.Telegram.Debug
	log.Info().Str("username", api.Self.UserName).Msg("authorized on telegram")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := api.GetUpdatesChan(u)
	go func() {
		<-ctx.Done()
		api.StopReceivingUpdates()
	}()

	for update := range updates {
		if update.Message == nil || update.Message.Text == "" {
			continue
		}
		handle(ctx, api, bot, update.Message, log)
	}
}

func handle(ctx context.Context, api *tgbotapi.BotAPI, bot *chatbot.Bot, msg *tgbotapi.Message, log zerolog.Logger) {
	text := msg.Text
	if msg.IsCommand() {
		// /start and /help show the usage; other commands are treated as queries
		switch msg.Command() {
		case "start", "help":
			text = ""
		default:
			text = msg.CommandArguments()
		}
	}
	reply := tgbotapi.NewMessage(msg.Chat.ID, bot.Reply(ctx, text))
	reply.ReplyToMessageID = msg.MessageID
	if _, err := api.Send(reply); err != nil {
		log.Warn().Err(err).Int64("chat_id", msg.Chat.ID).Msg("send reply")
	}
}
