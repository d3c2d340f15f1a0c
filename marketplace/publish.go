package marketplace

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/ragforge/ragforge/ragerr"
	"github.com/ragforge/ragforge/sandbox"
)

// packageManifest is the subset of a plugin's package.json that Publish
// validates and feeds into the sandbox scan.
type packageManifest struct {
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	RagPlugin    json.RawMessage `json:"ragPlugin"`
	Dependencies map[string]string `json:"dependencies"`
	Permissions  []string        `json:"permissions"`
}

// Publish packages the plugin at dir (which must contain a package.json
// carrying name, version, and a ragPlugin section), runs it through the
// sandbox scanner, and uploads it to the registry.
func (c *Client) Publish(ctx context.Context, dir string) (PublishResult, error) {
	manifestPath := filepath.Join(dir, "package.json")
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return PublishResult{}, ragerr.Wrap(ragerr.InvalidInput, "read package.json", err)
	}

	var pkg packageManifest
	if err := json.Unmarshal(raw, &pkg); err != nil {
		return PublishResult{}, ragerr.Wrap(ragerr.InvalidInput, "parse package.json", err)
	}
	if pkg.Name == "" || pkg.Version == "" || len(pkg.RagPlugin) == 0 {
		return PublishResult{}, ragerr.New(ragerr.InvalidInput,
			"package.json must declare name, version, and a ragPlugin section")
	}

	deps := make([]string, 0, len(pkg.Dependencies))
	for name := range pkg.Dependencies {
		deps = append(deps, name)
	}
	manifest := sandbox.Manifest{
		Dependencies: deps,
		Permissions:  pkg.Permissions,
	}
	scanResult := sandbox.Scan(manifest)
	if scanResult.HasHighRiskFindings() {
		return PublishResult{}, ragerr.Newf(ragerr.SecurityScanFailed,
			"plugin %q failed the security scan: %v", pkg.Name, scanResult.Issues)
	}

	archive, err := packageDirectory(dir)
	if err != nil {
		return PublishResult{}, ragerr.Wrap(ragerr.Transient, "package plugin directory", err)
	}

	resp, err := c.do(ctx, "POST", "/plugins/publish", nil, map[string]any{
		"name":    pkg.Name,
		"version": pkg.Version,
		"archive": base64.StdEncoding.EncodeToString(archive),
	})
	if err != nil {
		return PublishResult{}, err
	}

	var result PublishResult
	if err := unmarshalJSON(resp.body, &result); err != nil {
		return PublishResult{}, ragerr.Wrap(ragerr.Transient, "decode publish response", err)
	}

	c.analytics.record(AnalyticsEvent{Type: "publish", PluginID: pkg.Name})
	return result, nil
}

// packageDirectory concatenates dir's file contents into an archive
// blob, base64-encoded by the caller for the JSON publish request.
func packageDirectory(dir string) ([]byte, error) {
	var buf bytes.Buffer
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return readErr
		}
		buf.Write(data)
		return nil
	})
	return buf.Bytes(), err
}
