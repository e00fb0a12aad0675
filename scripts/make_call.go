package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/harunnryd/reliefline/pkg/configutil"
	"github.com/harunnryd/reliefline/pkg/telephony"
	"github.com/spf13/viper"
)

type dialConfig struct {
	Server struct {
		PublicURL  string `mapstructure:"public_url"`
		VoicePath  string `mapstructure:"voice_path"`
		StatusPath string `mapstructure:"status_path"`
	} `mapstructure:"server"`
	Twilio struct {
		AccountSID string `mapstructure:"account_sid"`
		AuthToken  string `mapstructure:"auth_token"`
		FromNumber string `mapstructure:"from_number"`
	} `mapstructure:"twilio"`
}

func main() {
	configPath := flag.String("config", "examples/relief/config.example.yaml", "")
	from := flag.String("from", "", "")
	to := flag.String("to", "", "")
	voiceURL := flag.String("voice_url", "", "")
	flag.Parse()

	cfg, err := loadDialConfig(*configPath)
	if err != nil {
		fmt.Println("config error:", err)
		os.Exit(1)
	}
	caller := configutil.StringOr(*from, cfg.Twilio.FromNumber)
	if caller == "" || *to == "" {
		fmt.Println("usage: make_call -to=+456 [-from=+123] [-config=...]")
		os.Exit(1)
	}
	if err := configutil.Require(
		configutil.Field{Path: "twilio.account_sid", Value: cfg.Twilio.AccountSID},
		configutil.Field{Path: "twilio.auth_token", Value: cfg.Twilio.AuthToken},
	); err != nil {
		fmt.Println("config error:", err)
		os.Exit(1)
	}
	if *voiceURL == "" && telephony.NormalizePublicURL(cfg.Server.PublicURL) == "" {
		fmt.Println("server.public_url is empty")
		os.Exit(1)
	}

	dialer := telephony.NewDialer(telephony.DialerConfig{
		AccountSID:         cfg.Twilio.AccountSID,
		AuthToken:          cfg.Twilio.AuthToken,
		PublicURL:          cfg.Server.PublicURL,
		VoicePath:          cfg.Server.VoicePath,
		StatusCallbackPath: cfg.Server.StatusPath,
	})
	callSID, err := dialer.Dial(context.Background(), *to, caller, *voiceURL)
	if err != nil {
		fmt.Println("call error:", err)
		os.Exit(1)
	}
	fmt.Println("call_sid:", callSID)
}

func loadDialConfig(path string) (dialConfig, error) {
	v := viper.New()
	v.SetDefault("server.voice_path", "/incoming-call")
	v.SetDefault("server.status_path", "/status")
	_ = v.BindEnv("server.public_url", "PUBLIC_URL")
	_ = v.BindEnv("twilio.account_sid", "TWILIO_ACCOUNT_SID")
	_ = v.BindEnv("twilio.auth_token", "TWILIO_AUTH_TOKEN")
	_ = v.BindEnv("twilio.from_number", "TWILIO_FROM_NUMBER")
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return dialConfig{}, err
	}
	var cfg dialConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return dialConfig{}, err
	}
	cfg.Server.PublicURL = os.ExpandEnv(cfg.Server.PublicURL)
	cfg.Twilio.AccountSID = os.ExpandEnv(cfg.Twilio.AccountSID)
	cfg.Twilio.AuthToken = os.ExpandEnv(cfg.Twilio.AuthToken)
	cfg.Twilio.FromNumber = os.ExpandEnv(cfg.Twilio.FromNumber)
	return cfg, nil
}
