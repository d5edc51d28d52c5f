// Package challenge issues and redeems signed proof-of-work challenges.
//
// A challenge carries a random salt, a difficulty in leading zero bits and an
// expiry, signed with a keyed BLAKE2b-256 MAC so the server keeps no state
// until redemption. A client searches for a nonce such that
// sha256(salt + ":" + nonce) starts with at least difficulty zero bits and
// posts it back. Redemption checks the signature, the expiry and the work,
// then records the id in a ReplayStore so each challenge is redeemed once.
//
// Both endpoints are meant to sit behind the rate limit middleware under the
// challenge-issue and challenge-redeem rules.
package challenge
