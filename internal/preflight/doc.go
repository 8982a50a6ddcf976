// Package preflight provides readiness checks for the directories and
// external tools metapipe depends on.
//
// These checks run in two contexts:
//   - The build command calls RunAll before converting; a failing check
//     stops the run before any encoder starts.
//   - The CLI "metapipe doctor" command renders every check, including the
//     system dependency report from CheckSystemDeps.
package preflight
