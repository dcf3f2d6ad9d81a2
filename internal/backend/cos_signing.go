package backend

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode"
)

// signTTL is how long a generated authorization stays valid.
const signTTL = 3600 * time.Second

// buildAuthorization derives the COS request authorization value from
// long-lived credentials and the request shape. The format is fixed by
// the provider and must be reproduced exactly:
//
//  1. keyTime = "<now>;<now+3600>" in unix seconds.
//  2. signKey = hex(HMAC-SHA1(secretKey, keyTime)).
//  3. Query parameters are split on '&' and sorted by the raw
//     parameter string; the sorted "k=v" pairs rejoined with '&' enter
//     the signed string, the keys joined with ';' (case preserved)
//     become q-url-param-list.
//  4. httpString = "<method lower>\n/<key>\n<params>\nhost=<host>\n".
//  5. stringToSign = "sha1\n<keyTime>\n<hex(SHA1(httpString))>\n".
//  6. signature = hex(HMAC-SHA1(signKey, stringToSign)).
//
// The signature covers the virtual host, so every signed request must
// carry a Host header with exactly the host value passed here.
func buildAuthorization(secretID, secretKey, method, objectKey, rawQuery, host string, now time.Time) (string, error) {
	if secretID == "" || secretKey == "" {
		return "", fmt.Errorf("cos credentials not configured")
	}
	if hasControlChars(secretID) || hasControlChars(secretKey) {
		return "", fmt.Errorf("cos credentials contain invalid characters")
	}

	keyTime := fmt.Sprintf("%d;%d", now.Unix(), now.Add(signTTL).Unix())
	signKey := hmacSHA1Hex(secretKey, keyTime)

	queryParamList, urlParamList := canonicalQuery(rawQuery)

	cleanKey := strings.TrimPrefix(objectKey, "/")
	httpString := fmt.Sprintf("%s\n/%s\n%s\nhost=%s\n",
		strings.ToLower(method), cleanKey, queryParamList, host)

	httpDigest := sha1.Sum([]byte(httpString))
	stringToSign := fmt.Sprintf("sha1\n%s\n%s\n", keyTime, hex.EncodeToString(httpDigest[:]))

	signature := hmacSHA1Hex(signKey, stringToSign)

	authorization := fmt.Sprintf(
		"q-sign-algorithm=sha1&q-ak=%s&q-sign-time=%s&q-key-time=%s&q-header-list=host&q-url-param-list=%s&q-signature=%s",
		queryEscape(secretID), keyTime, keyTime, urlParamList, signature)

	if hasControlChars(authorization) {
		return "", fmt.Errorf("generated authorization contains invalid characters")
	}
	return authorization, nil
}

// canonicalQuery sorts raw "k=v&k2=v2" parameters and returns the
// rejoined pair list plus the ';'-joined key list. Fragments without
// '=' are dropped, matching the provider's canonicalization.
func canonicalQuery(rawQuery string) (queryParamList string, urlParamList string) {
	if rawQuery == "" {
		return "", ""
	}
	params := strings.Split(rawQuery, "&")
	sort.Strings(params)

	var pairs, keys []string
	for _, param := range params {
		eq := strings.Index(param, "=")
		if eq < 0 {
			continue
		}
		pairs = append(pairs, param[:eq]+"="+param[eq+1:])
		keys = append(keys, param[:eq])
	}
	return strings.Join(pairs, "&"), strings.Join(keys, ";")
}

func hmacSHA1Hex(key, message string) string {
	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

func hasControlChars(s string) bool {
	return strings.ContainsFunc(s, func(r rune) bool {
		return r == '\n' || r == '\r' || unicode.IsControl(r)
	})
}

// queryEscape percent-encodes s for use inside the authorization value.
// Spaces encode as %20, not '+'.
func queryEscape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
