package violations

// recordScript appends one violation to the sender's rolling window and
// applies the block policy in the same call. KEYS: window zset, lifetime
// counter, block hash, flagged zset. Returns
// {window_count, lifetime_count, action, until_ms, indefinite}.
const recordScript = `
local window_key = KEYS[1]
local lifetime_key = KEYS[2]
local block_key = KEYS[3]
local flagged_key = KEYS[4]

local now = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local member = ARGV[3]
local flag_at = tonumber(ARGV[4])
local block_at = tonumber(ARGV[5])
local indefinite_at = tonumber(ARGV[6])
local cooldown_ms = tonumber(ARGV[7])
local sender = ARGV[8]
local reason = ARGV[9]

redis.call("ZREMRANGEBYSCORE", window_key, "-inf", now - window_ms)
redis.call("ZADD", window_key, now, member)
redis.call("PEXPIRE", window_key, window_ms)
local in_window = redis.call("ZCARD", window_key)
local lifetime = redis.call("INCR", lifetime_key)

local until_ms = tonumber(redis.call("HGET", block_key, "until_ms")) or 0
local indefinite = redis.call("HGET", block_key, "indefinite") == "1"
local active = indefinite or until_ms > now
local action = "none"

if in_window >= flag_at then
	redis.call("ZADD", flagged_key, "NX", now, sender)
end

if lifetime >= indefinite_at then
	if not indefinite then
		action = "indefinite"
		indefinite = true
		until_ms = 0
	end
elseif in_window >= block_at then
	local candidate = now + cooldown_ms
	if not active then
		action = "block"
		until_ms = candidate
	elseif not indefinite and candidate > until_ms then
		action = "extend"
		until_ms = candidate
	end
elseif in_window >= flag_at and not active then
	action = "flag"
end

if action == "block" or action == "extend" or action == "indefinite" then
	local flag = "0"
	if indefinite then
		flag = "1"
	end
	redis.call("HSET", block_key,
		"until_ms", until_ms,
		"indefinite", flag,
		"reason", reason,
		"count", in_window)
	if indefinite then
		redis.call("PERSIST", block_key)
	else
		redis.call("PEXPIRE", block_key, until_ms - now)
	end
end

local indefinite_flag = 0
if indefinite then
	indefinite_flag = 1
end
if not active and (action == "none" or action == "flag") then
	until_ms = 0
end

return {in_window, lifetime, action, until_ms, indefinite_flag}
`

// setBlockScript installs an admin block, keeping an existing indefinite
// block indefinite. ARGV: until_ms, indefinite, reason, count, ttl_ms.
const setBlockScript = `
local block_key = KEYS[3]

local until_ms = ARGV[1]
local indefinite = ARGV[2]
local reason = ARGV[3]
local count = ARGV[4]
local ttl_ms = tonumber(ARGV[5])

if redis.call("HGET", block_key, "indefinite") == "1" then
	indefinite = "1"
end
if indefinite == "1" then
	until_ms = "0"
end

redis.call("HSET", block_key,
	"until_ms", until_ms,
	"indefinite", indefinite,
	"reason", reason,
	"count", count)
if indefinite == "1" then
	redis.call("PERSIST", block_key)
elseif ttl_ms ~= nil and ttl_ms > 0 then
	redis.call("PEXPIRE", block_key, ttl_ms)
end
return 1
`
