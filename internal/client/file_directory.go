package client

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/pesio-ai/be-approvals/internal/repository"
)

// FileDirectory serves approvers from a static YAML file, for deployments
// without the ERP and for local development.
//
//	groups:
//	  CC01:
//	    - username: alice
//	      level: 1
//	      min_amount: "0"
//	      max_amount: "5000"
type FileDirectory struct {
	groups map[string][]repository.DirectoryApprover
}

type fileDirectoryDoc struct {
	Groups map[string][]fileApprover `yaml:"groups"`
}

type fileApprover struct {
	Username  string `yaml:"username"`
	Level     int    `yaml:"level"`
	MinAmount string `yaml:"min_amount"`
	MaxAmount string `yaml:"max_amount"`
}

// LoadFileDirectory reads and validates a directory file.
func LoadFileDirectory(path string) (*FileDirectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read approver directory %s: %w", path, err)
	}
	return ParseFileDirectory(data)
}

// ParseFileDirectory builds a directory from YAML.
func ParseFileDirectory(data []byte) (*FileDirectory, error) {
	var doc fileDirectoryDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse approver directory: %w", err)
	}

	groups := make(map[string][]repository.DirectoryApprover, len(doc.Groups))
	for code, entries := range doc.Groups {
		code = strings.TrimSpace(code)
		for i, e := range entries {
			a, err := e.toApprover()
			if err != nil {
				return nil, fmt.Errorf("group %s entry %d: %w", code, i, err)
			}
			groups[code] = append(groups[code], a)
		}
		sort.SliceStable(groups[code], func(i, j int) bool {
			return groups[code][i].Level < groups[code][j].Level
		})
	}
	return &FileDirectory{groups: groups}, nil
}

func (e fileApprover) toApprover() (repository.DirectoryApprover, error) {
	a := repository.DirectoryApprover{
		Username:  strings.TrimSpace(e.Username),
		Level:     e.Level,
		MinAmount: decimal.Zero,
	}
	if a.Username == "" {
		return a, fmt.Errorf("username is required")
	}
	if a.Level < 0 {
		return a, fmt.Errorf("level must not be negative")
	}
	if e.MinAmount != "" {
		min, err := decimal.NewFromString(e.MinAmount)
		if err != nil {
			return a, fmt.Errorf("invalid min_amount: %w", err)
		}
		a.MinAmount = min
	}
	if e.MaxAmount != "" {
		max, err := decimal.NewFromString(e.MaxAmount)
		if err != nil {
			return a, fmt.Errorf("invalid max_amount: %w", err)
		}
		if max.LessThan(a.MinAmount) {
			return a, fmt.Errorf("max_amount below min_amount")
		}
		a.MaxAmount = &max
	}
	return a, nil
}

// LookupApprovers returns the approvers of approvalGroup covering amount.
func (d *FileDirectory) LookupApprovers(ctx context.Context, approvalGroup string, amount decimal.Decimal) ([]repository.DirectoryApprover, error) {
	var out []repository.DirectoryApprover
	for _, a := range d.groups[strings.TrimSpace(approvalGroup)] {
		if repository.RuleCoversAmount(a.MinAmount, a.MaxAmount, amount) {
			out = append(out, a)
		}
	}
	return out, nil
}
