package commands

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	sshpkg "golang.org/x/crypto/ssh"
)

const sampleRecipe = `# Daylight recipe
project: %s
target: build
recipe: grid-based
type: 0

sky:
  kind: certain-illuminance
  illuminance: 10000

grids:
  - name: floor
    file: grids/floor.pts

scene:
  materials: [scene/materials.mat]
  geometry: [scene/room.rad]

parameters:
  quality: 1

# Run on a render host instead of locally:
# remote:
#   host: render01
#   user: radiance
#   private_key: .daylight/keys/default-ed25519
`

const sampleGrid = `1 1 0.75 0 0 1
2 1 0.75 0 0 1
1 2 0.75 0 0 1
2 2 0.75 0 0 1
`

const sampleMaterials = `void plastic white_wall
0
0
5 0.6 0.6 0.6 0 0

void glass clear_glass
0
0
3 0.88 0.88 0.88
`

const sampleGeometry = `white_wall polygon floor
0
0
12 0 0 0  3 0 0  3 3 0  0 3 0

clear_glass polygon window
0
0
12 0 0 1  3 0 1  3 0 2  0 0 2
`

const samplePolicy = `# Keeps quick studies small.
# severity: warning
package daylight.local.quick_study

import rego.v1

deny contains violation if {
	input.total_points > 20000
	violation := {"message": sprintf("%d points is a lot for a quick study", [input.total_points])}
}
`

func newInitCommand() *cobra.Command {
	var (
		project string
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Initialize a daylight workspace",
		Long: `Initialize a workspace with a run ledger, an SSH keypair for render hosts
and a sample recipe with its grid, scene and policy files.

Existing files are kept unless --force is given.`,
		Example: `  # Initialize the current folder
  daylight init

  # Initialize a new folder for the office project
  daylight init studies/office --project office`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			if project == "" {
				abs, err := filepath.Abs(dir)
				if err != nil {
					return err
				}
				project = filepath.Base(abs)
			}
			log.Info().Str("dir", dir).Str("project", project).Msg("Initializing workspace")

			fmt.Printf("Initializing daylight workspace in %s\n\n", dir)

			dataDir := filepath.Join(dir, workspaceDir)
			for _, d := range []string{
				dataDir,
				filepath.Join(dataDir, "keys"),
				filepath.Join(dir, "grids"),
				filepath.Join(dir, "scene"),
				filepath.Join(dir, policiesDir),
			} {
				if err := os.MkdirAll(d, 0o755); err != nil {
					return fmt.Errorf("failed to create directory %s: %w", d, err)
				}
				fmt.Printf("✓ Created directory: %s\n", d)
			}

			if !cmd.Flags().Changed("db") {
				dbPath = filepath.Join(dataDir, "daylight.db")
			}
			store, err := openStore(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialize run ledger: %w", err)
			}
			if err := store.HealthCheck(ctx); err != nil {
				_ = store.Close()
				return err
			}
			_ = store.Close()
			fmt.Printf("✓ Initialized run ledger: %s\n", dbPath)

			files := []struct {
				path    string
				content string
			}{
				{filepath.Join(dir, "recipe.yaml"), fmt.Sprintf(sampleRecipe, project)},
				{filepath.Join(dir, "grids", "floor.pts"), sampleGrid},
				{filepath.Join(dir, "scene", "materials.mat"), sampleMaterials},
				{filepath.Join(dir, "scene", "room.rad"), sampleGeometry},
				{filepath.Join(dir, policiesDir, "quick-study.rego"), samplePolicy},
			}
			for _, f := range files {
				written, err := writeIfMissing(f.path, []byte(f.content), force)
				if err != nil {
					return err
				}
				if written {
					fmt.Printf("✓ Created file: %s\n", f.path)
				} else {
					fmt.Printf("✓ File already exists: %s\n", f.path)
				}
			}

			keyPath := filepath.Join(dataDir, "keys", "default-ed25519")
			created, err := generateKeypair(keyPath)
			if err != nil {
				return err
			}
			if created {
				fmt.Printf("✓ Generated SSH keypair: %s\n", keyPath)
			} else {
				fmt.Printf("✓ SSH keypair already exists: %s\n", keyPath)
			}

			fmt.Printf("\n✅ Workspace initialized successfully!\n\n")
			fmt.Printf("Next steps:\n")
			fmt.Printf("  1. Check the recipe:\n")
			fmt.Printf("     daylight validate recipe.yaml\n\n")
			fmt.Printf("  2. Run it:\n")
			fmt.Printf("     daylight run recipe.yaml\n\n")
			fmt.Printf("  3. For render hosts, add %s.pub to ~/.ssh/authorized_keys there\n", keyPath)

			return nil
		},
	}

	cmd.Flags().StringVar(&project, "project", "", "project name (default: folder name)")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing sample files")

	return cmd
}

func writeIfMissing(path string, data []byte, force bool) (bool, error) {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return true, nil
}

// generateKeypair writes an ed25519 key in OpenSSH format and its public
// half, unless the key exists.
func generateKeypair(keyPath string) (bool, error) {
	if _, err := os.Stat(keyPath); err == nil {
		return false, nil
	}

	pubKey, privKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return false, fmt.Errorf("failed to generate keypair: %w", err)
	}

	privKeyBytes, err := sshpkg.MarshalPrivateKey(privKey, "daylight")
	if err != nil {
		return false, fmt.Errorf("failed to marshal private key: %w", err)
	}
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(privKeyBytes), 0o600); err != nil {
		return false, fmt.Errorf("failed to write private key: %w", err)
	}

	sshPubKey, err := sshpkg.NewPublicKey(pubKey)
	if err != nil {
		return false, fmt.Errorf("failed to create SSH public key: %w", err)
	}
	if err := os.WriteFile(keyPath+".pub", sshpkg.MarshalAuthorizedKey(sshPubKey), 0o644); err != nil {
		return false, fmt.Errorf("failed to write public key: %w", err)
	}
	return true, nil
}
