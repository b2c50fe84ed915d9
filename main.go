package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"voicy/audio"
	"voicy/config"
	"voicy/controller"
	"voicy/engine"
	"voicy/hotkey"
	"voicy/inject"
	"voicy/log"
	"voicy/shutdown"
	"voicy/tray"
)

var version = "dev"

var (
	shutdownOnce sync.Once
	appSinkRef   *appSink
)

func gracefulShutdown() {
	shutdownOnce.Do(func() {
		if appSinkRef != nil {
			if n := appSinkRef.SessionCount(); n > 0 {
				log.SessionEnd(n)
			}
		}
		log.Close()
		tray.Quit()
		tuiMu.Lock()
		p := tuiProgram
		tuiMu.Unlock()
		if p != nil {
			p.Quit()
		}
		os.Exit(0)
	})
}

func deviceLineText(dev *audio.DeviceInfo) string {
	name := "system default"
	suffix := ""
	if dev != nil {
		name = dev.Name
		if audio.IsBluetooth(dev.Name) {
			suffix = " (BT!)"
		}
	}
	return "mic: " + name + suffix
}

func modeLineText(eng engine.Engine, s config.Settings) string {
	return fmt.Sprintf("[%s | %s | %s]", eng.Name(), s.ModelSize, s.Language)
}

func run() {
	setupFlag := flag.Bool("setup", false, "Select microphone device (otherwise uses system default)")
	deviceFlag := flag.String("device", "", "Use named microphone device")
	engineFlag := flag.String("engine", "auto", "Transcription engine: auto, native, or stub")
	configFlag := flag.String("config", "", "Config file path (default: OS-specific location)")
	modelFlag := flag.String("model", "", "Override model size (tiny, base, small, medium, large-v2)")
	langFlag := flag.String("lang", "", "Override language code (e.g. en, de). \"auto\" = detect")
	autoPasteFlag := flag.Bool("autopaste", true, "Paste transcript into the focused window")
	timeoutFlag := flag.Duration("transcribe-timeout", controller.DefaultTranscribeTimeout, "Abandon transcription after this long")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	crashFlag := flag.Bool("crash", false, "Trigger synthetic panic for testing crash logging")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	profileFlag := flag.String("profile", "", "Enable pprof profiling server (e.g., :6060 or localhost:6060)")
	testFlag := flag.Bool("test", false, "Test mode (headless, stdin-driven)")
	tuiFlag := flag.Bool("tui", true, "Run with terminal UI")
	flag.Parse()

	// Resolve log directory early
	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}

	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}

	if *profileFlag != "" {
		go func() {
			fmt.Fprintf(os.Stderr, "pprof server listening on http://%s/debug/pprof/\n", *profileFlag)
			if err := http.ListenAndServe(*profileFlag, nil); err != nil {
				fmt.Fprintf(os.Stderr, "pprof server error: %v\n", err)
			}
		}()
	}

	if *crashFlag {
		panic("TEST CRASH: synthetic panic to verify crash logging")
	}

	if *versionFlag {
		fmt.Printf("voicy %s\n", version)
		os.Exit(0)
	}

	// Config: file values, then per-run flag overrides (not persisted).
	cfgPath := *configFlag
	if cfgPath == "" {
		cfgPath, err = config.DefaultPath()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	store, err := config.Open(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	settings := store.Load()
	if *modelFlag != "" {
		settings.ModelSize = *modelFlag
	}
	if *langFlag != "" {
		settings.Language = *langFlag
	}
	if err := settings.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	store.Set(settings)

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}

	eng := newEngine(*engineFlag, settings)
	defer eng.Close()
	log.SessionStart(eng.Name(), settings.ModelSize, settings.Language)

	if *testFlag {
		args := flag.Args()
		if len(args) == 0 {
			fmt.Fprintln(os.Stderr, "Usage: voicy -test <wav-file>")
			os.Exit(1)
		}
		runTestMode(args[0], eng, store, *timeoutFlag)
		return
	}

	autoPaste := *autoPasteFlag
	if autoPaste {
		if err := inject.Init(); err != nil {
			fmt.Printf("Warning: paste init failed: %v\n", err)
			fmt.Println("Fix with: sudo chmod 660 /dev/uinput && sudo chgrp input /dev/uinput")
			autoPaste = false
		}
	}

	ctx, err := audio.NewContext()
	if err != nil {
		log.Errorf("audio context init error: %v", err)
		fmt.Printf("Error initializing audio context: %v\n", err)
		os.Exit(1)
	}
	defer ctx.Close()

	var selectedDevice *audio.DeviceInfo
	if *deviceFlag != "" {
		if devices, err := ctx.Devices(); err == nil {
			for i := range devices {
				if devices[i].Name == *deviceFlag {
					selectedDevice = &devices[i]
					break
				}
			}
		}
	} else if *setupFlag {
		selectedDevice, err = audio.SelectDevice(ctx)
		if errors.Is(err, audio.ErrSelectionCancelled) {
			os.Exit(130)
		}
		if err != nil {
			log.Warnf("device selection failed: %v", err)
			fmt.Printf("Warning: device selection failed: %v\n", err)
			fmt.Println("Falling back to default device")
			selectedDevice = nil
		}
	}

	captureConfig := audio.CaptureConfig{
		SampleRate: audio.SampleRate,
		Channels:   audio.Channels,
	}
	captureDevice, err := ctx.NewCapture(selectedDevice, captureConfig)
	if err != nil {
		log.Errorf("capture device init error: %v", err)
		fmt.Printf("Error initializing capture device: %v\n", err)
		os.Exit(1)
	}
	recorder := audio.NewRecorder(captureDevice)
	defer recorder.Close()

	// Start TUI
	if !*tuiFlag {
		tuiReadyOnce.Do(func() { close(tuiReady) })
	} else {
		tuiMu.Lock()
		tuiProgram = NewTUIProgram()
		tuiMu.Unlock()

		go func() {
			if _, err := tuiProgram.Run(); err != nil {
				log.Errorf("TUI error: %v", err)
				os.Exit(1)
			}
			gracefulShutdown()
		}()

		<-tuiReady
	}

	sink := &appSink{}
	appSinkRef = sink

	injectFn := inject.Text
	if !autoPaste {
		injectFn = inject.Copy
	}

	ctrl := controller.New(controller.Options{
		Capture:  recorder,
		Engine:   eng,
		Settings: store,
		Sink:     sink,
		Inject:   injectFn,
		Timeout:  *timeoutFlag,
	})

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ctrl.Run(runCtx)

	tray.OnCopyLast(sink.CopyLast)
	tray.OnIndicator(func() { ctrl.Push(controller.IndicatorClick) })
	tray.SetBTCheck(audio.IsBluetooth)

	// preferredDevice remembers the user's choice so we can auto-reconnect
	preferredDevice := ""
	if selectedDevice != nil {
		preferredDevice = selectedDevice.Name
	}
	switchDevice := func(name string) {
		if ctrl.State() != controller.StateIdle {
			log.Warn("device switch ignored while busy")
			return
		}
		applyDeviceSwitch(ctx, captureConfig, recorder, &selectedDevice, name)
	}
	if devices, err := ctx.Devices(); err == nil && len(devices) > 0 {
		names := make([]string, len(devices))
		for i := range devices {
			names[i] = devices[i].Name
		}
		tray.SetDevices(names, preferredDevice, func(name string) {
			preferredDevice = name
			switchDevice(name)
		})
	}

	trayQuit := tray.Init()

	// Poll for device changes (hotplug)
	go pollDevices(ctx, recorder, &selectedDevice, &preferredDevice, captureConfig, ctrl)

	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)
	go func() {
		select {
		case <-sigChan:
		case <-trayQuit:
		}
		cancel()
		gracefulShutdown()
	}()

	settings = store.Load()
	holdHk, err := hotkey.New(mustCombo(settings.HoldCombo))
	if err == nil {
		err = holdHk.Register()
	}
	if err != nil {
		log.Errorf("hotkey register error: %v", err)
		fmt.Printf("Error registering hold hotkey: %v\n", err)
		os.Exit(1)
	}
	defer holdHk.Unregister()

	toggleHk, err := hotkey.New(mustCombo(settings.ToggleCombo))
	if err == nil {
		err = toggleHk.Register()
	}
	if err != nil {
		log.Errorf("hotkey register error: %v", err)
		fmt.Printf("Error registering toggle hotkey: %v\n", err)
		os.Exit(1)
	}
	defer toggleHk.Unregister()

	tuiSend(ModeLineMsg{Text: modeLineText(eng, settings)})
	tuiSend(DeviceLineMsg{Text: deviceLineText(selectedDevice)})

	for {
		select {
		case <-holdHk.Keydown():
			ctrl.Push(controller.HoldDown)
		case <-holdHk.Keyup():
			ctrl.Push(controller.HoldUp)
		case <-toggleHk.Keydown():
			ctrl.Push(controller.TogglePress)
		case <-toggleHk.Keyup():
			// Only the press toggles; the release is not an event.
		}
	}
}

// newEngine picks the transcription backend. "auto" prefers the native
// engine and falls back to the stub when the binding or model is missing.
func newEngine(backend string, s config.Settings) engine.Engine {
	if backend == "auto" {
		eng, err := engine.New(engine.Config{Backend: "native", ModelPath: s.ModelPath()})
		if err == nil {
			return eng
		}
		if errors.Is(err, engine.ErrNativeUnavailable) {
			log.Warnf("native engine unavailable, using stub: %v", err)
		} else {
			fmt.Printf("Warning: %v, using stub engine\n", err)
		}
		eng, _ = engine.New(engine.Config{Backend: "stub"})
		return eng
	}
	eng, err := engine.New(engine.Config{Backend: backend, ModelPath: s.ModelPath()})
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	return eng
}

func mustCombo(spec string) hotkey.Combo {
	combo, err := hotkey.ParseCombo(spec)
	if err != nil {
		fmt.Printf("Error: invalid hotkey %q: %v\n", spec, err)
		os.Exit(1)
	}
	return combo
}

func applyDeviceSwitch(ctx audio.Context, captureConfig audio.CaptureConfig, recorder *audio.Recorder, selectedDevice **audio.DeviceInfo, name string) {
	var newDevice *audio.DeviceInfo
	if name != "" {
		devices, err := ctx.Devices()
		if err != nil {
			log.Warnf("device enumeration failed: %v", err)
			return
		}
		for i := range devices {
			if devices[i].Name == name {
				newDevice = &devices[i]
				break
			}
		}
		if newDevice == nil {
			log.Warnf("device not found: %s", name)
			return
		}
	}

	label := "system default"
	if newDevice != nil {
		label = newDevice.Name
	}
	log.Info("device_switch: " + label)

	newCapture, err := ctx.NewCapture(newDevice, captureConfig)
	if err != nil {
		log.Errorf("capture device reinit error: %v", err)
		return
	}
	if old := recorder.SetDevice(newCapture); old != nil {
		old.Close()
	}
	*selectedDevice = newDevice
	tuiSend(DeviceLineMsg{Text: deviceLineText(newDevice)})
}

// pollDevices watches for hotplug: if the selected device disappears fall
// back to the default, and reconnect when the preferred one returns.
func pollDevices(ctx audio.Context, recorder *audio.Recorder, selectedDevice **audio.DeviceInfo, preferredDevice *string, captureConfig audio.CaptureConfig, ctrl *controller.Controller) {
	var last []string
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		devices, err := ctx.Devices()
		if err != nil {
			continue
		}
		names := make([]string, len(devices))
		for i := range devices {
			names[i] = devices[i].Name
		}
		if slices.Equal(last, names) {
			continue
		}
		last = names

		selName := ""
		if *selectedDevice != nil {
			selName = (*selectedDevice).Name
		}
		if ctrl.State() == controller.StateIdle {
			if selName != "" && !slices.Contains(names, selName) {
				log.Info("device_disconnected: " + selName)
				applyDeviceSwitch(ctx, captureConfig, recorder, selectedDevice, "")
				selName = ""
			} else if selName == "" && *preferredDevice != "" && slices.Contains(names, *preferredDevice) {
				log.Info("device_reconnected: " + *preferredDevice)
				applyDeviceSwitch(ctx, captureConfig, recorder, selectedDevice, *preferredDevice)
				selName = *preferredDevice
			}
		}
		tray.RefreshDevices(names, selName)
	}
}
