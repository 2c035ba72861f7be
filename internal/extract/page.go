package extract

// operatorPage is the self-contained page served at /. Three paths,
// strongest first: paste the cookie string, replay cookies against the
// identity endpoint, or read script-visible cookies from an open tab.
// The third rarely works because the session token is usually
// HTTP-only, but it costs nothing to offer.
const operatorPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Credential Extraction</title>
<style>
  body { font-family: -apple-system, "Segoe UI", sans-serif; max-width: 640px; margin: 40px auto; padding: 0 16px; color: #222; }
  h1 { font-size: 1.3em; }
  section { border: 1px solid #ddd; border-radius: 6px; padding: 12px 16px; margin: 16px 0; }
  textarea { width: 100%; height: 72px; font-family: monospace; font-size: 12px; }
  button { padding: 6px 14px; cursor: pointer; }
  #status { font-weight: bold; margin-top: 12px; }
  .ok { color: #1a7f37; }
  .err { color: #b42318; }
</style>
</head>
<body>
<h1>Credential Extraction</h1>
<p>This page is served by your local tool. Nothing here leaves your machine
except the identity-endpoint request you explicitly trigger.</p>

<section>
  <h2>1. Paste cookie string</h2>
  <p>Open the application in your signed-in browser, copy the cookie string
  from DevTools (Application &rarr; Cookies), and paste it below. It must
  contain <code>sessionToken=</code>.</p>
  <textarea id="cookies" placeholder="sessionToken=...; userIdToken=..."></textarea><br>
  <button onclick="submitCookies()">Submit</button>
</section>

<section>
  <h2>2. Extract via identity endpoint</h2>
  <p>Replays your pasted cookies against the application's identity endpoint
  and reads the refreshed session cookie from the response.</p>
  <button onclick="apiExtract()">Extract from API</button>
</section>

<section>
  <h2>3. Read this tab's cookies</h2>
  <p>Best effort: only works if the session token is script-visible, which
  it usually is not.</p>
  <button onclick="tabExtract()">Extract from open tab</button>
</section>

<div id="status"></div>

<script>
function setStatus(msg, ok) {
  var el = document.getElementById('status');
  el.textContent = msg;
  el.className = ok ? 'ok' : 'err';
}

function post(path, body) {
  return fetch(path, {
    method: 'POST',
    headers: { 'Content-Type': 'application/json' },
    body: JSON.stringify(body)
  }).then(function (r) { return r.json(); });
}

function submitCookies() {
  var cookies = document.getElementById('cookies').value.trim();
  post('/extract-session', { cookies: cookies })
    .then(function (res) { setStatus(res.message, res.success); })
    .catch(function (err) { setStatus('request failed: ' + err, false); });
}

function apiExtract() {
  var cookies = document.getElementById('cookies').value.trim();
  post('/api-extract', { action: 'identity', cookies: cookies })
    .then(function (res) { setStatus(res.message, res.success); })
    .catch(function (err) { setStatus('request failed: ' + err, false); });
}

function tabExtract() {
  var cookies = document.cookie;
  if (!cookies) {
    setStatus('no script-visible cookies in this tab', false);
    return;
  }
  post('/extract-session', { cookies: cookies })
    .then(function (res) { setStatus(res.message, res.success); })
    .catch(function (err) { setStatus('request failed: ' + err, false); });
}
</script>
</body>
</html>
`
