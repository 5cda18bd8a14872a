package kernel

import "embed"

// systemBundle is the immutable source bundle installed to the confined
// /bin directory on first boot, per the protected-bit bootstrap contract
// (vfs.go's Bootstrap). Every entry here ships owner-rwx with the
// protected bit set, so a guest can execute but never overwrite it.
//
//go:embed bin
var systemBundleFS embed.FS

// SystemBundle reads the embedded bin/ tree into the map[string][]byte
// Bootstrap expects, keyed by the bundled file's name relative to bin/.
func SystemBundle() (map[string][]byte, error) {
	entries, err := systemBundleFS.ReadDir("bin")
	if err != nil {
		return nil, err
	}
	bundle := make(map[string][]byte, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := systemBundleFS.ReadFile("bin/" + entry.Name())
		if err != nil {
			return nil, err
		}
		bundle[entry.Name()] = data
	}
	return bundle, nil
}
