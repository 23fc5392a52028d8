package sqlinline

const QInsertLedgerRecord = `--sql 67861d23-4ea4-47ea-bfd8-9ac53ade8a68
insert into entitlements (user_id, email, created_at, package, expiry, usage, updated_at)
values ($1::uuid, lower($2::text), $3::timestamptz, $4::text, $5::timestamptz, $6::jsonb, now());
`

const QSelectLedgerRecord = `--sql f4e2f731-7256-4ebb-b30a-f4b530bfa510
select user_id::text, email, created_at, package, expiry, usage
from entitlements
where user_id = $1::uuid
limit 1;
`

const QSelectLedgerRecordByEmail = `--sql 462cdbc7-355e-4ed0-98ad-72f79bd4b14d
select user_id::text, email, created_at, package, expiry, usage
from entitlements
where lower(email) = lower($1::text)
limit 1;
`

const QIncrementLedgerUsage = `--sql 0fdc12e8-0085-4155-a530-031a21d77659
update entitlements
set usage = jsonb_set(usage, array[$2::text], to_jsonb(coalesce((usage->>$2::text)::int, 0) + 1), true),
    updated_at = now()
where user_id = $1::uuid;
`

const QChangeSubscription = `--sql abb172fc-20fc-4221-b058-b4fbd841ae62
with claimed as (
    insert into payment_sessions (session_id, user_id, email, package, expiry, applied_at)
    select $5::text, e.user_id, $6::text, $2::text, $3::timestamptz, $7::timestamptz
    from entitlements e
    where e.user_id = $1::uuid
      and $5::text is not null
    on conflict (session_id) do nothing
    returning session_id
),
updated as (
    update entitlements
    set package = $2::text,
        expiry = $3::timestamptz,
        usage = $4::jsonb,
        updated_at = now()
    where user_id = $1::uuid
      and ($5::text is null or exists (select 1 from claimed))
    returning user_id
)
select (select count(*) from updated),
       ($5::text is not null
        and exists (select 1 from entitlements where user_id = $1::uuid)
        and not exists (select 1 from claimed));
`

const QExpireSubscription = `--sql 3c9e5b71-d0a4-4f6e-9b2a-8e41c7f05d13
update entitlements
set package = 'free',
    expiry = null,
    usage = case when $4::boolean then $5::jsonb else usage end,
    updated_at = now()
where user_id = $1::uuid
  and package = $2::text
  and expiry is not distinct from $3::timestamptz;
`

const QSelectPaymentSession = `--sql 16228629-2ca7-4682-9771-dfd9f96f09b6
select session_id, user_id::text, email, package, expiry, applied_at
from payment_sessions
where session_id = $1::text
limit 1;
`
