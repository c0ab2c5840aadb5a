package main

import (
	"fmt"
	"os"

	"github.com/okanebot/okane/common/environment"
	"github.com/okanebot/okane/common/version"
	"github.com/okanebot/okane/internal/okane/app"
	"github.com/okanebot/okane/internal/okane/charts"
	"github.com/okanebot/okane/internal/okane/llm"
	"github.com/okanebot/okane/internal/okane/matrix"
	"github.com/okanebot/okane/internal/okane/observability"
	"github.com/okanebot/okane/internal/okane/whatsapp"
)

func main() {
	fmt.Printf("Okane Expense Assistant\n")
	fmt.Printf("%s\n\n", version.Info())

	observability.Setup(
		environment.StringOr("LOG_LEVEL", "info"),
		environment.StringOr("LOG_FORMAT", "json"),
	)

	config := loadConfig()

	if config.LLM.APIKey == "" {
		fmt.Fprintf(os.Stderr, "Error: OKANE_LLM_API_KEY is required\n")
		os.Exit(1)
	}
	if config.Matrix.Homeserver == "" && config.WhatsApp.HTTPAddr == "" {
		fmt.Fprintf(os.Stderr, "Error: configure at least one transport\n")
		fmt.Fprintf(os.Stderr, "  Matrix:   MATRIX_HOMESERVER, MATRIX_USER_ID, MATRIX_ACCESS_TOKEN\n")
		fmt.Fprintf(os.Stderr, "  WhatsApp: WHATSAPP_HTTP_ADDR, WHATSAPP_PHONE_NUMBER_ID, WHATSAPP_ACCESS_TOKEN, WHATSAPP_VERIFY_TOKEN\n")
		os.Exit(1)
	}
	if config.Matrix.Homeserver != "" {
		if config.Matrix.UserID == "" || config.Matrix.AccessToken == "" {
			fmt.Fprintf(os.Stderr, "Error: MATRIX_USER_ID and MATRIX_ACCESS_TOKEN are required with MATRIX_HOMESERVER\n")
			os.Exit(1)
		}
	}
	if config.WhatsApp.HTTPAddr != "" {
		if config.WhatsApp.Sender.PhoneNumberID == "" || config.WhatsApp.Sender.AccessToken == "" || config.WhatsApp.Webhook.VerifyToken == "" {
			fmt.Fprintf(os.Stderr, "Error: WHATSAPP_PHONE_NUMBER_ID, WHATSAPP_ACCESS_TOKEN and WHATSAPP_VERIFY_TOKEN are required with WHATSAPP_HTTP_ADDR\n")
			os.Exit(1)
		}
	}

	okane, err := app.New(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize Okane: %v\n", err)
		os.Exit(1)
	}
	defer okane.Stop()

	if err := okane.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running Okane: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration from environment variables.
func loadConfig() *app.Config {
	return &app.Config{
		DatabasePath: environment.StringOr("DATABASE_PATH", "./okane.db"),
		LLM: llm.OpenAIConfig{
			APIKey:  environment.StringOr("OKANE_LLM_API_KEY", ""),
			BaseURL: environment.StringOr("OKANE_LLM_ENDPOINT", ""),
			Model:   environment.StringOr("OKANE_LLM_MODEL", ""),
		},
		Charts: charts.Config{
			BaseURL: environment.StringOr("OKANE_CHART_ENDPOINT", ""),
		},
		Matrix: matrix.Config{
			Homeserver:   environment.StringOr("MATRIX_HOMESERVER", ""),
			UserID:       environment.StringOr("MATRIX_USER_ID", ""),
			AccessToken:  environment.StringOr("MATRIX_ACCESS_TOKEN", ""),
			AllowedRooms: environment.StringSliceOr("MATRIX_ALLOWED_ROOMS", nil),
		},
		WhatsApp: app.WhatsAppConfig{
			HTTPAddr: environment.StringOr("WHATSAPP_HTTP_ADDR", ""),
			Sender: whatsapp.SenderConfig{
				BaseURL:          environment.StringOr("WHATSAPP_API_ENDPOINT", ""),
				PhoneNumberID:    environment.StringOr("WHATSAPP_PHONE_NUMBER_ID", ""),
				AccessToken:      environment.StringOr("WHATSAPP_ACCESS_TOKEN", ""),
				TemplateLanguage: environment.StringOr("WHATSAPP_TEMPLATE_LANGUAGE", ""),
			},
			Webhook: whatsapp.WebhookConfig{
				VerifyToken: environment.StringOr("WHATSAPP_VERIFY_TOKEN", ""),
			},
			TemplatesPath: environment.StringOr("WHATSAPP_TEMPLATES_PATH", ""),
		},
	}
}
