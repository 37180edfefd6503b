package lib

// Banner the banner
const Banner = `
                     _
 _ __ _   _ _ __    (_)___
| '__| | | | '_ \   | / __|
| |  | |_| | | | |  | \__ \
|_|   \__,_|_| |_| _/ |___/
                  |__/
`

var (
	// Version is the current version.
	Version = "(untracked)"
	// CommitSHA is the commit sha.
	CommitSHA = "(unknown)"
)
