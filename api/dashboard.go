package api

import (
	"net/http"
)

// DashboardHandler serves a self-refreshing page over the metrics and state endpoints
func DashboardHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(dashboardHTML))
	})
}

const dashboardHTML = `<!DOCTYPE html>
<html lang="es">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Punto y Lana · Offline Cache</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: linear-gradient(135deg, #b45f7a 0%, #6d3b5c 100%);
            min-height: 100vh;
            padding: 20px;
        }
        .container {
            max-width: 1200px;
            margin: 0 auto;
        }
        .header {
            text-align: center;
            color: white;
            margin-bottom: 30px;
        }
        .header h1 {
            font-size: 2.5em;
            margin-bottom: 10px;
        }
        .header p {
            opacity: 0.9;
            font-size: 1.1em;
        }
        .stats-grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(250px, 1fr));
            gap: 20px;
            margin-bottom: 30px;
        }
        .stat-card {
            background: white;
            border-radius: 12px;
            padding: 25px;
            box-shadow: 0 4px 6px rgba(0,0,0,0.1);
            transition: transform 0.2s;
        }
        .stat-card:hover {
            transform: translateY(-5px);
        }
        .stat-label {
            color: #666;
            font-size: 0.9em;
            text-transform: uppercase;
            letter-spacing: 1px;
            margin-bottom: 10px;
        }
        .stat-value {
            font-size: 2.5em;
            font-weight: bold;
            color: #333;
        }
        .stat-value.success { color: #10b981; }
        .stat-value.danger { color: #ef4444; }
        .stat-value.info { color: #3b82f6; }
        .stat-value.warning { color: #f59e0b; }
        .stat-sublabel {
            margin-top: 8px;
            font-size: 0.9em;
            color: #666;
            font-weight: normal;
        }
        .table-card {
            background: white;
            border-radius: 12px;
            padding: 25px;
            box-shadow: 0 4px 6px rgba(0,0,0,0.1);
        }
        .table-card h2 {
            margin-bottom: 20px;
            color: #333;
        }
        table {
            width: 100%;
            border-collapse: collapse;
        }
        th {
            text-align: left;
            padding: 12px;
            background: #f3f4f6;
            color: #666;
            font-weight: 600;
            text-transform: uppercase;
            font-size: 0.85em;
            letter-spacing: 0.5px;
        }
        td {
            padding: 12px;
            border-bottom: 1px solid #e5e7eb;
        }
        tr:last-child td {
            border-bottom: none;
        }
        .badge {
            display: inline-block;
            padding: 4px 12px;
            border-radius: 12px;
            font-size: 0.85em;
            font-weight: 600;
        }
        .badge.success {
            background: #d1fae5;
            color: #065f46;
        }
        .badge.danger {
            background: #fee2e2;
            color: #991b1b;
        }
        .refresh-indicator {
            position: fixed;
            top: 20px;
            right: 20px;
            background: white;
            padding: 10px 20px;
            border-radius: 20px;
            box-shadow: 0 2px 4px rgba(0,0,0,0.1);
            font-size: 0.9em;
            color: #666;
        }
        .refresh-indicator.active {
            background: #10b981;
            color: white;
        }
    </style>
</head>
<body>
    <div class="refresh-indicator" id="refreshIndicator">
        Auto-refresh: <span id="countdown">2</span>s
    </div>

    <div class="container">
        <div class="header">
            <h1>🧶 Punto y Lana</h1>
            <p>Offline cache · <span id="workerState">no worker</span></p>
        </div>

        <div class="stats-grid">
            <div class="stat-card">
                <div class="stat-label">Intercepted</div>
                <div class="stat-value info" id="totalFetches">0</div>
            </div>
            <div class="stat-card">
                <div class="stat-label">Served Offline</div>
                <div class="stat-value success" id="servedFromCache">0</div>
                <div class="stat-sublabel" id="cacheRate">0% of requests</div>
            </div>
            <div class="stat-card">
                <div class="stat-label">Unavailable</div>
                <div class="stat-value danger" id="unavailable">0</div>
                <div class="stat-sublabel" id="unavailableRate">0% of requests</div>
            </div>
            <div class="stat-card">
                <div class="stat-label">Cache Write Errors</div>
                <div class="stat-value warning" id="writeErrors">0</div>
            </div>
        </div>

        <div class="table-card">
            <h2>Top Paths</h2>
            <table>
                <thead>
                    <tr>
                        <th>Path</th>
                        <th>Total</th>
                        <th>Network</th>
                        <th>Cache</th>
                        <th>Last Outcome</th>
                        <th>Last Seen</th>
                    </tr>
                </thead>
                <tbody id="topPathsTable">
                    <tr>
                        <td colspan="6" style="text-align: center; color: #999;">
                            Loading...
                        </td>
                    </tr>
                </tbody>
            </table>
        </div>
    </div>

    <script>
        let countdown = 2;
        let countdownInterval;

        async function fetchMetrics() {
            try {
                const [metrics, state] = await Promise.all([
                    fetch('/_sw/metrics').then(r => r.json()),
                    fetch('/_sw/state').then(r => r.json()),
                ]);
                updateDashboard(metrics, state);
            } catch (error) {
                console.error('Failed to fetch metrics:', error);
            }
        }

        function updateDashboard(data, state) {
            document.getElementById('workerState').textContent = state.active
                ? state.active.version + ' (' + state.active.state + ')' + (state.waiting ? ', ' + state.waiting.version + ' waiting' : '')
                : 'no worker';

            document.getElementById('totalFetches').textContent =
                data.total_fetches.toLocaleString();
            document.getElementById('servedFromCache').textContent =
                data.served_from_cache.toLocaleString();
            document.getElementById('unavailable').textContent =
                data.unavailable.toLocaleString();
            document.getElementById('writeErrors').textContent =
                data.cache_write_errors.toLocaleString();

            if (data.total_fetches > 0) {
                const cacheRate = ((data.served_from_cache / data.total_fetches) * 100).toFixed(1);
                const unavailableRate = ((data.unavailable / data.total_fetches) * 100).toFixed(1);
                document.getElementById('cacheRate').textContent = cacheRate + '% of requests';
                document.getElementById('unavailableRate').textContent = unavailableRate + '% of requests';
            } else {
                document.getElementById('cacheRate').textContent = '0% of requests';
                document.getElementById('unavailableRate').textContent = '0% of requests';
            }

            const tbody = document.getElementById('topPathsTable');
            tbody.replaceChildren();
            if (data.top_paths && data.top_paths.length > 0) {
                for (const p of data.top_paths) {
                    const network = p.outcomes.network || 0;
                    const cached = (p.outcomes.cache || 0) + (p.outcomes.offline || 0);
                    const badge = p.last_outcome === 'unavailable' ? 'danger' : 'success';
                    const lastSeen = new Date(p.last_request_at).toLocaleTimeString();

                    // Paths come from request URLs; only ever set them as text
                    const row = document.createElement('tr');
                    const path = document.createElement('strong');
                    path.textContent = p.path;
                    const outcome = document.createElement('span');
                    outcome.className = 'badge ' + badge;
                    outcome.textContent = p.last_outcome;

                    for (const content of [path, p.total_requests.toLocaleString(), network, cached, outcome, lastSeen]) {
                        const cell = document.createElement('td');
                        if (content instanceof Node) {
                            cell.appendChild(content);
                        } else {
                            cell.textContent = String(content);
                        }
                        row.appendChild(cell);
                    }
                    tbody.appendChild(row);
                }
            } else {
                const row = document.createElement('tr');
                const cell = document.createElement('td');
                cell.colSpan = 6;
                cell.style.textAlign = 'center';
                cell.style.color = '#999';
                cell.textContent = 'No requests yet';
                row.appendChild(cell);
                tbody.appendChild(row);
            }
        }

        function startCountdown() {
            countdown = 2;
            document.getElementById('countdown').textContent = countdown;
            
            if (countdownInterval) clearInterval(countdownInterval);
            
            countdownInterval = setInterval(() => {
                countdown--;
                document.getElementById('countdown').textContent = countdown;
                
                if (countdown <= 0) {
                    countdown = 2;
                }
            }, 1000);
        }

        // Initial fetch
        fetchMetrics();
        startCountdown();

        // Auto-refresh every 2 seconds
        setInterval(() => {
            fetchMetrics();
            startCountdown();
        }, 2000);
    </script>
</body>
</html>`
