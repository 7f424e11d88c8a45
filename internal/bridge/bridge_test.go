package bridge

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/Iron-Ham/wdpool/internal/errors"
	"github.com/Iron-Ham/wdpool/internal/testutil"
	"github.com/tidwall/gjson"
)

func TestVendorDefaults(t *testing.T) {
	tests := []struct {
		bridge      Bridge
		name        string
		path        string
		concurrency int
		args        []string
	}{
		{Chrome(), "chrome", "chromedriver", 0, []string{"--port=9515"}},
		{Firefox(), "firefox", "geckodriver", 1, []string{"--port", "9515"}},
		{Safari(), "safari", "safaridriver", 1, []string{"--port=9515"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.bridge.(*local)
			if b.Name() != tt.name {
				t.Errorf("Name() = %q, want %q", b.Name(), tt.name)
			}
			if b.Path() != tt.path {
				t.Errorf("Path() = %q, want %q", b.Path(), tt.path)
			}
			if b.Concurrency() != tt.concurrency {
				t.Errorf("Concurrency() = %d, want %d", b.Concurrency(), tt.concurrency)
			}
			if got := b.args(9515); !reflect.DeepEqual(got, tt.args) {
				t.Errorf("args(9515) = %v, want %v", got, tt.args)
			}
		})
	}
}

func TestCapabilities(t *testing.T) {
	t.Run("chrome headless", func(t *testing.T) {
		caps := gjson.ParseBytes(Chrome().Capabilities(true))
		if got := caps.Get("alwaysMatch.browserName").String(); got != "chrome" {
			t.Errorf("browserName = %q", got)
		}
		args := caps.Get(`alwaysMatch.goog:chromeOptions.args`).Array()
		if len(args) != 1 || args[0].String() != "--headless" {
			t.Errorf("chrome args = %v", args)
		}
		if !caps.Get("alwaysMatch.webSocketUrl").Bool() {
			t.Error("webSocketUrl not requested")
		}
	})

	t.Run("firefox headed", func(t *testing.T) {
		caps := gjson.ParseBytes(Firefox().Capabilities(false))
		if got := caps.Get("alwaysMatch.browserName").String(); got != "firefox" {
			t.Errorf("browserName = %q", got)
		}
		args := caps.Get(`alwaysMatch.moz:firefoxOptions.args`)
		if !args.IsArray() || len(args.Array()) != 0 {
			t.Errorf("firefox args = %s, want []", args.Raw)
		}
	})

	t.Run("safari has no vendor options", func(t *testing.T) {
		caps := gjson.ParseBytes(Safari().Capabilities(true))
		if got := caps.Get("alwaysMatch").Raw; got != `{"browserName":"safari"}` {
			t.Errorf("alwaysMatch = %s", got)
		}
	})
}

func TestMergeCapabilities(t *testing.T) {
	base := Chrome().Capabilities(true)
	merged, err := MergeCapabilities(base, map[string]any{
		"alwaysMatch.acceptInsecureCerts": true,
		"alwaysMatch.webSocketUrl":        nil,
	})
	if err != nil {
		t.Fatalf("MergeCapabilities: %v", err)
	}
	caps := gjson.ParseBytes(merged)
	if !caps.Get("alwaysMatch.acceptInsecureCerts").Bool() {
		t.Error("override not applied")
	}
	if caps.Get("alwaysMatch.webSocketUrl").Exists() {
		t.Error("nil override should delete the key")
	}
	if caps.Get("alwaysMatch.browserName").String() != "chrome" {
		t.Error("base capabilities lost")
	}
	if !gjson.GetBytes(base, "alwaysMatch.webSocketUrl").Exists() {
		t.Error("MergeCapabilities modified its input")
	}
}

func TestOptions(t *testing.T) {
	b := Firefox(WithPath("/opt/gecko"), WithConcurrency(3), WithGracePeriod(2*time.Second), WithPath("")).(*local)
	if b.Path() != "/opt/gecko" {
		t.Errorf("Path() = %q", b.Path())
	}
	if b.Concurrency() != 3 {
		t.Errorf("Concurrency() = %d, want 3", b.Concurrency())
	}
	if b.cfg.gracePeriod != 2*time.Second {
		t.Errorf("gracePeriod = %v", b.cfg.gracePeriod)
	}

	d := b.NewDriver(nil)
	if d.Concurrency() != 3 {
		t.Errorf("driver Concurrency() = %d, want 3", d.Concurrency())
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fakedriver")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestVersionAndSupported(t *testing.T) {
	testutil.SkipIfNoBinary(t, "sh")
	ctx := context.Background()

	b := Chrome(WithPath(writeScript(t, `echo "ChromeDriver 120.0.6099.109"`)))
	v, err := b.Version(ctx)
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if v != "ChromeDriver 120.0.6099.109" {
		t.Errorf("Version() = %q", v)
	}
	if !Supported(ctx, b) {
		t.Error("Supported() = false for a working driver")
	}

	missing := Chrome(WithPath(filepath.Join(t.TempDir(), "missing")))
	if Supported(ctx, missing) {
		t.Error("Supported() = true for a missing driver")
	}
}

func TestRemote(t *testing.T) {
	fake := testutil.NewFakeDriver(t)
	b := Remote("firefox", WithURL(fake.URL()), WithConcurrency(4))

	if b.Name() != "remote" {
		t.Errorf("Name() = %q", b.Name())
	}
	if b.Concurrency() != 4 {
		t.Errorf("Concurrency() = %d, want 4", b.Concurrency())
	}
	if got := gjson.GetBytes(b.Capabilities(true), "alwaysMatch.browserName").String(); got != "firefox" {
		t.Errorf("browserName = %q", got)
	}
	if !Supported(context.Background(), b) {
		t.Error("remote end answering /status should be supported")
	}

	d := b.NewDriver(nil)
	if d.Endpoint() != fake.URL() {
		t.Errorf("driver endpoint = %q, want %q", d.Endpoint(), fake.URL())
	}
	if err := d.Start(context.Background(), 3); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if d.Pid() != 0 {
		t.Error("remote driver should not spawn a process")
	}

	if Supported(context.Background(), Remote("")) {
		t.Error("remote without URL should not be supported")
	}
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()
	if got, want := r.Names(), []string{"chrome", "firefox", "safari", "remote"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}

	r.Register("firefox", Safari)
	if got := r.Names()[1]; got != "firefox" {
		t.Errorf("replacing should keep position, got %q", got)
	}
	b, err := r.New("firefox")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if b.Name() != "safari" {
		t.Errorf("replaced constructor not used, got %q", b.Name())
	}

	_, err = r.New("opera")
	if !errors.Is(err, errors.ErrUnsupportedBridge) {
		t.Errorf("New(opera) err = %v, want ErrUnsupportedBridge", err)
	}
}

func TestRegistryDefault(t *testing.T) {
	testutil.SkipIfNoBinary(t, "sh")
	ctx := context.Background()
	working := writeScript(t, `echo "geckodriver 0.34.0"`)
	missing := filepath.Join(t.TempDir(), "missing")

	r := NewRegistry()
	r.Register("chrome", Chrome)
	r.Register("firefox", Firefox)

	optsFor := func(name string) []Option {
		if name == "firefox" {
			return []Option{WithPath(working)}
		}
		return []Option{WithPath(missing)}
	}

	b, err := r.Default(ctx, "", optsFor)
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if b.Name() != "firefox" {
		t.Errorf("Default picked %q, want first installed (firefox)", b.Name())
	}

	b, err = r.Default(ctx, "chrome", optsFor)
	if err != nil {
		t.Fatalf("Default(chrome): %v", err)
	}
	if b.Name() != "chrome" {
		t.Errorf("explicit name ignored, got %q", b.Name())
	}

	_, err = r.Default(ctx, "", func(string) []Option { return []Option{WithPath(missing)} })
	if !errors.Is(err, errors.ErrUnsupportedBridge) {
		t.Errorf("err = %v, want ErrUnsupportedBridge", err)
	}
}
