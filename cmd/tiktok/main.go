// Command tiktok fetches public TikTok profiles.
//
// Usage:
//
//	tiktok profile <username|@username|profile-url>
//	tiktok batch <username>... [--file users.txt]
//
// See --help for all options.
package main

func main() {
	Execute()
}
