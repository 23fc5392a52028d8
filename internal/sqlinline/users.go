package sqlinline

const QInsertUser = `--sql 5db1c863-9094-43c5-b215-84b3e4ff6794
insert into users (id, email, password_hash, verified, verify_token, created_at, updated_at)
values ($1::uuid, lower($2::text), $3::text, $4::boolean, nullif($5::text, ''), $6::timestamptz, $6::timestamptz);
`

const QSelectUserByID = `--sql 2ae3d349-3bc6-44a2-af85-2cd670650241
select id::text, email, password_hash, verified, coalesce(verify_token, ''), coalesce(reset_token, ''), reset_expires, created_at, updated_at
from users
where id = $1::uuid
limit 1;
`

const QSelectUserByEmail = `--sql 7c808ea9-b326-4838-9cab-7edf696ce329
select id::text, email, password_hash, verified, coalesce(verify_token, ''), coalesce(reset_token, ''), reset_expires, created_at, updated_at
from users
where lower(email) = lower($1::text)
limit 1;
`

const QVerifyUser = `--sql 7c80ac3e-4ab0-4cce-a7d9-dda0ad1bb8c5
update users
set verified = true, verify_token = null, updated_at = now()
where verify_token = $1::text
returning id::text, email, password_hash, verified, coalesce(verify_token, ''), coalesce(reset_token, ''), reset_expires, created_at, updated_at;
`

const QSetResetToken = `--sql d729e144-7215-41c7-9ea2-e209410ead91
update users
set reset_token = $2::text, reset_expires = $3::timestamptz, updated_at = now()
where id = $1::uuid;
`

const QResetPassword = `--sql c5c8d57e-c010-46b8-81c4-c271e669c21f
update users
set password_hash = $2::text, reset_token = null, reset_expires = null, verified = true, updated_at = now()
where reset_token = $1::text
  and reset_expires > $3::timestamptz
returning id::text, email, password_hash, verified, coalesce(verify_token, ''), coalesce(reset_token, ''), reset_expires, created_at, updated_at;
`
