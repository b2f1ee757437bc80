package config

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	Convey("Given no file and no environment", t, func() {
		cfg, err := Load("")

		Convey("Then the defaults apply", func() {
			So(err, ShouldBeNil)
			So(cfg.Port, ShouldEqual, "8080")
			So(cfg.LogLevel, ShouldEqual, "info")
			So(cfg.PollInterval, ShouldEqual, MinPollInterval)
			So(cfg.Year, ShouldBeGreaterThanOrEqualTo, 2015)
		})
	})

	Convey("Given a YAML file", t, func() {
		path := writeConfig(t, t.TempDir(), `
log_level: debug
year: 2022
board_id: 12345
session: cookie
poll_interval: 30m
local_storage: /tmp/aoc
`)

		Convey("When it is loaded alone", func() {
			cfg, err := Load(path)

			Convey("Then its values override the defaults", func() {
				So(err, ShouldBeNil)
				So(cfg.LogLevel, ShouldEqual, "debug")
				So(cfg.Year, ShouldEqual, 2022)
				So(cfg.BoardID, ShouldEqual, uint64(12345))
				So(cfg.PollInterval, ShouldEqual, 30*time.Minute)
				So(cfg.LocalStorage, ShouldEqual, "/tmp/aoc")
				So(cfg.Port, ShouldEqual, "8080")
			})
		})

		Convey("When environment variables are set", func() {
			t.Setenv("AOC_YEAR", "2023")
			t.Setenv("AOC_SLACK_WEBHOOK", "https://hooks.example.com/x")
			cfg, err := Load(path)

			Convey("Then they take precedence over the file", func() {
				So(err, ShouldBeNil)
				So(cfg.Year, ShouldEqual, 2023)
				So(cfg.SlackWebhook, ShouldEqual, "https://hooks.example.com/x")
				So(cfg.Session, ShouldEqual, "cookie")
			})
		})
	})

	Convey("Given a missing file", t, func() {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))

		Convey("Then loading fails", func() {
			So(err, ShouldNotBeNil)
		})
	})
}

func TestValidate(t *testing.T) {
	Convey("Given invalid settings", t, func() {
		cases := map[string]func(*Config){
			"unknown log level":       func(c *Config) { c.LogLevel = "loud" },
			"empty port":              func(c *Config) { c.Port = "" },
			"year before the event":   func(c *Config) { c.Year = 2014 },
			"board without a session": func(c *Config) { c.BoardID = 1 },
			"poll interval too short": func(c *Config) { c.PollInterval = time.Minute },
		}
		for name, mutate := range cases {
			Convey("Then "+name+" is rejected", func() {
				cfg := New()
				mutate(cfg)
				So(errors.Is(cfg.Validate(), ErrInvalidConfig), ShouldBeTrue)
			})
		}

		Convey("Then a zero poll interval disables the ticker and is accepted", func() {
			cfg := New()
			cfg.PollInterval = 0
			So(cfg.Validate(), ShouldBeNil)
		})
	})
}

func TestWatch(t *testing.T) {
	Convey("Given a watched config file", t, func() {
		dir := t.TempDir()
		path := writeConfig(t, dir, "log_level: info\n")
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		changes := make(chan *Config, 64)
		done := make(chan error, 1)
		go func() {
			done <- Watch(ctx, path, logger, func(c *Config) { changes <- c })
		}()

		// waitFor rewrites the file until a config with level arrives, which
		// also covers the watcher not being registered yet.
		waitFor := func(level string) *Config {
			deadline := time.After(5 * time.Second)
			writeConfig(t, dir, "log_level: "+level+"\n")
			for {
				select {
				case got := <-changes:
					if got.LogLevel == level {
						return got
					}
				case <-time.After(300 * time.Millisecond):
					writeConfig(t, dir, "log_level: "+level+"\n")
				case <-deadline:
					return nil
				}
			}
		}

		Convey("When the file is rewritten", func() {
			got := waitFor("debug")

			Convey("Then the reloaded config is delivered", func() {
				So(got, ShouldNotBeNil)
				So(got.LogLevel, ShouldEqual, "debug")
			})
		})

		Convey("When the file is rewritten many times in a row", func() {
			So(waitFor("warn"), ShouldNotBeNil)
			for range 50 {
				writeConfig(t, dir, "log_level: warn\n")
			}
			time.Sleep(10 * reloadDelay)

			var delivered []string
		drain:
			for {
				select {
				case c := <-changes:
					delivered = append(delivered, c.LogLevel)
				default:
					break drain
				}
			}

			Convey("Then no half-written file falls back to the defaults", func() {
				for _, level := range delivered {
					So(level, ShouldEqual, "warn")
				}
			})

			Convey("And the burst is coalesced into few reloads", func() {
				So(len(delivered), ShouldBeLessThan, 50)
			})
		})

		Convey("When the context is cancelled", func() {
			cancel()

			Convey("Then Watch returns without error", func() {
				select {
				case err := <-done:
					So(err, ShouldBeNil)
				case <-time.After(5 * time.Second):
					So("Watch did not return", ShouldBeEmpty)
				}
			})
		})
	})
}
