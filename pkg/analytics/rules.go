package analytics

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/funnelpulse/pkg/observability"
)

// RulesFile is the on-disk alert rule set
type RulesFile struct {
	// Defaults starts from DefaultAlertRules and applies Rules as overrides by id
	Defaults   bool             `yaml:"defaults"`
	Thresholds *AlertThresholds `yaml:"thresholds,omitempty"`
	Rules      []AlertRule      `yaml:"rules"`
}

// ParseRules decodes a YAML rule set
func ParseRules(data []byte, thresholds AlertThresholds) ([]AlertRule, error) {
	var file RulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse alert rules: %w", err)
	}
	if file.Thresholds != nil {
		thresholds = *file.Thresholds
	}

	var rules []AlertRule
	if file.Defaults {
		rules = DefaultAlertRules(thresholds)
	}
	for _, override := range file.Rules {
		replaced := false
		for i := range rules {
			if rules[i].ID == override.ID {
				rules[i] = override
				replaced = true
				break
			}
		}
		if !replaced {
			rules = append(rules, override)
		}
	}

	if len(rules) == 0 {
		return nil, errors.New("alert rules file defines no rules")
	}

	var errs []error
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return rules, nil
}

// LoadRules reads a YAML rule set from path
func LoadRules(path string, thresholds AlertThresholds) ([]AlertRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read alert rules: %w", err)
	}
	return ParseRules(data, thresholds)
}

// RuleWatcher reloads an alerter's rules whenever the rules file changes.
// A file that fails to parse leaves the previous rules in place.
type RuleWatcher struct {
	path       string
	thresholds AlertThresholds
	alerter    *Alerter
	logger     *observability.Logger
	watcher    *fsnotify.Watcher
}

// NewRuleWatcher loads path into alerter and prepares to watch it
func NewRuleWatcher(path string, thresholds AlertThresholds, alerter *Alerter, logger *observability.Logger) (*RuleWatcher, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	rules, err := LoadRules(path, thresholds)
	if err != nil {
		return nil, err
	}
	alerter.SetRules(rules)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	// Watch the directory so editors that replace the file are still seen.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}

	return &RuleWatcher{
		path:       filepath.Clean(path),
		thresholds: thresholds,
		alerter:    alerter,
		logger:     logger.WithComponent("rule_watcher").WithField("path", path),
		watcher:    watcher,
	}, nil
}

// Run processes file events until ctx is done
func (w *RuleWatcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Warn("Rule watcher error")
		}
	}
}

func (w *RuleWatcher) reload() {
	rules, err := LoadRules(w.path, w.thresholds)
	if err != nil {
		w.logger.WithError(err).Error("Failed to reload alert rules, keeping previous rules")
		return
	}
	w.alerter.SetRules(rules)
	w.logger.WithField("rules", len(rules)).Info("Alert rules reloaded")
}
