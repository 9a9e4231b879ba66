package pipeline

import "github.com/pushgate/pushgate/pkg/models"

// DefaultID is the pipeline registered when no definition file is supplied.
const DefaultID = "rust-nightly"

// Default returns the built-in Rust nightly verification pipeline. The
// sequence assumes a clean machine: it checks out the triggering commit,
// provisions the toolchain and then builds, tests and lints. The ref, commit
// and run ID are exposed to every step via PUSHGATE_* environment variables.
func Default() *models.Pipeline {
	return &models.Pipeline{
		ID:          DefaultID,
		Name:        "Rust nightly gate",
		Description: "Build, test and lint every push against the nightly toolchain.",
		Steps: []models.Step{
			{
				Name: "Checkout",
				Run:  `git fetch origin "$PUSHGATE_REF" && git checkout --detach "$PUSHGATE_COMMIT"`,
			},
			{
				Name: "Get Rustfmt",
				Run:  "rustup component add rustfmt",
			},
			{
				Name: "Get Rust Nightly",
				Run:  "rustup toolchain install nightly --allow-downgrade --component rustfmt && rustup default nightly",
			},
			{
				Name: "Get Clippy",
				Run:  "rustup component add clippy",
			},
			{
				Name: "Build",
				Run:  "cargo build --verbose",
			},
			{
				Name: "Test",
				Run:  "cargo test --verbose",
			},
			{
				Name: "Lint",
				Run:  "cargo clippy --verbose && cargo fmt --verbose --all -- --check",
			},
		},
	}
}
