// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (C) 2026 aPlane Authors

package main

// callbackPage lifts id_token out of the URL fragment, which never reaches
// the server, and posts the whole redirect URL to /zk/complete.
const callbackPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>zkLogin</title>
<style>
body { font-family: system-ui, sans-serif; display: flex; align-items: center; justify-content: center; min-height: 100vh; margin: 0; background: #f4f4f5; }
main { background: #fff; padding: 2rem 2.5rem; border-radius: 12px; box-shadow: 0 2px 12px rgba(0,0,0,.08); max-width: 32rem; }
code { word-break: break-all; }
.err { color: #b91c1c; }
</style>
</head>
<body>
<main>
<p id="status">Processing zkLogin response...</p>
</main>
<script>
(function () {
  var status = document.getElementById("status");
  var href = window.location.href;
  history.replaceState(null, "", window.location.pathname);
  fetch("/zk/complete", {
    method: "POST",
    headers: { "content-type": "application/json" },
    body: JSON.stringify({ callback: href })
  }).then(function (resp) {
    return resp.json().then(function (data) { return { ok: resp.ok, data: data }; });
  }).then(function (r) {
    if (!r.ok) {
      status.className = "err";
      status.textContent = "Sign-in failed: " + (r.data.error || "unknown error");
      return;
    }
    var msg = "Signed in as " + (r.data.email || r.data.subject) + ".";
    if (r.data.address) {
      msg += " Address: " + r.data.address;
      if (r.data.saltSource === "fallback") {
        msg += " (local salt)";
      }
    }
    status.textContent = msg + " You can close this tab.";
  }).catch(function (e) {
    status.className = "err";
    status.textContent = "Sign-in failed: " + e;
  });
})();
</script>
</body>
</html>
`
