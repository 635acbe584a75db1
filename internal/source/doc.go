// Package source lists and reads the documentation files to be indexed.
//
// The only production Source is GitHubSource, which walks the default
// branch of a repository (crewAIInc/crewAI by default) and keeps files under
// docs/<language>/ whose extension is allow-listed. Requests are throttled by
// a token bucket and by the quota GitHub reports in response headers.
package source
