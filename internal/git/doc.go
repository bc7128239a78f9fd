// Package git checks whether a container sits inside a git work tree
// where it could be committed.
//
// Checks performed:
//   - Whether the container is tracked by git (should not be)
//   - Whether any commit in history contains it (should be none)
//   - Whether it is in .gitignore (should be)
//
// Old revisions in history defeat deniability: comparing two ciphertexts
// of one container shows when and how much it changed.
package git
