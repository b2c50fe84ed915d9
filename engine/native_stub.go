//go:build !whispercpp

package engine

// NativeAvailable reports whether the whisper.cpp backend is compiled in.
func NativeAvailable() bool { return false }

func NewNative(modelPath string) (Engine, error) {
	return nil, ErrNativeUnavailable
}
